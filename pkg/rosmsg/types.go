// Package rosmsg holds the JSON shapes of the ROS messages and rosbridge
// operations the console exchanges with the bridge.
package rosmsg

import "time"

// ROS message type names as rosbridge expects them.
const (
	TypeTwistStamped      = "geometry_msgs/TwistStamped"
	TypeFloat64MultiArray = "std_msgs/Float64MultiArray"
	TypeCompressedImage   = "sensor_msgs/CompressedImage"
)

// Vector3 defines a standard 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist matches geometry_msgs/Twist.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// PlanarTwist builds the twist a ground vehicle understands: forward speed on
// linear.x and yaw rate on angular.z.
func PlanarTwist(linear, angular float64) Twist {
	return Twist{
		Linear:  Vector3{X: linear},
		Angular: Vector3{Z: angular},
	}
}

// IsZero reports whether every component is zero.
func (t Twist) IsZero() bool {
	return t == Twist{}
}

// Time matches builtin_interfaces/Time.
type Time struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// NewTime converts a wall-clock instant.
func NewTime(t time.Time) Time {
	return Time{
		Sec:     int32(t.Unix()),
		Nanosec: uint32(t.Nanosecond()),
	}
}

// Header matches std_msgs/Header.
type Header struct {
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// TwistStamped matches geometry_msgs/TwistStamped.
type TwistStamped struct {
	Header Header `json:"header"`
	Twist  Twist  `json:"twist"`
}

// MultiArrayDimension matches std_msgs/MultiArrayDimension.
type MultiArrayDimension struct {
	Label  string `json:"label"`
	Size   uint32 `json:"size"`
	Stride uint32 `json:"stride"`
}

// MultiArrayLayout matches std_msgs/MultiArrayLayout.
type MultiArrayLayout struct {
	Dim        []MultiArrayDimension `json:"dim"`
	DataOffset uint32                `json:"data_offset"`
}

// Float64MultiArray matches std_msgs/Float64MultiArray.
type Float64MultiArray struct {
	Layout MultiArrayLayout `json:"layout"`
	Data   []float64        `json:"data"`
}

// NewFloat64Array builds an array with an empty layout, serialized as
// {"layout":{"dim":[],"data_offset":0},"data":[...]}.
func NewFloat64Array(values ...float64) Float64MultiArray {
	data := make([]float64, len(values))
	copy(data, values)
	return Float64MultiArray{
		Layout: MultiArrayLayout{Dim: []MultiArrayDimension{}},
		Data:   data,
	}
}

// CompressedImage matches sensor_msgs/CompressedImage. rosbridge sends the
// uint8[] data as base64, which encoding/json decodes into Data.
type CompressedImage struct {
	Header Header `json:"header"`
	Format string `json:"format"`
	Data   []byte `json:"data"`
}
