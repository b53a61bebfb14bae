package rosmsg

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFloat64ArrayWireShape(t *testing.T) {
	data, err := json.Marshal(NewFloat64Array(0.25))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"layout":{"dim":[],"data_offset":0},"data":[0.25]}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, string(data))
	}
}

func TestTwistStampedWireShape(t *testing.T) {
	msg := TwistStamped{
		Header: Header{Stamp: NewTime(time.Unix(1700000000, 250000000)), FrameID: "base_link"},
		Twist:  PlanarTwist(1, -0.5),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"header":{"stamp":{"sec":1700000000,"nanosec":250000000},"frame_id":"base_link"},` +
		`"twist":{"linear":{"x":1,"y":0,"z":0},"angular":{"x":0,"y":0,"z":-0.5}}}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, string(data))
	}
}

func TestCompressedImageDecodesBase64(t *testing.T) {
	raw := `{"header":{"stamp":{"sec":1,"nanosec":2},"frame_id":"cam"},"format":"jpeg","data":"/9j/4A=="}`

	var img CompressedImage
	if err := json.Unmarshal([]byte(raw), &img); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if img.Format != "jpeg" {
		t.Errorf("Expected jpeg format, got %s", img.Format)
	}
	want := []byte{0xff, 0xd8, 0xff, 0xe0}
	if string(img.Data) != string(want) {
		t.Errorf("Expected JPEG magic bytes, got %x", img.Data)
	}
}

func TestTwistIsZero(t *testing.T) {
	if !PlanarTwist(0, 0).IsZero() {
		t.Errorf("Expected zero twist")
	}
	if PlanarTwist(0, 0.1).IsZero() {
		t.Errorf("Expected non-zero twist")
	}
}
