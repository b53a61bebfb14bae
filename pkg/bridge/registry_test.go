package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/console/pkg/rosmsg"
)

type sentOps struct {
	mu  sync.Mutex
	ops []interface{}
}

func (s *sentOps) send(op interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return true
}

func (s *sentOps) unsubscribes() []rosmsg.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rosmsg.Unsubscribe
	for _, op := range s.ops {
		if u, ok := op.(rosmsg.Unsubscribe); ok {
			out = append(out, u)
		}
	}
	return out
}

const imageMsg = `{"format":"jpeg","data":"AQID"}`

func TestResubscribeReplacesPriorHandle(t *testing.T) {
	sent := &sentOps{}
	reg := NewRegistry("conn-1", sent.send, 0, testLogger())

	var firstCalls, secondCalls int
	first, err := reg.Subscribe("/front", func(rosmsg.CompressedImage) { firstCalls++ })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second, err := reg.Subscribe("/front", func(rosmsg.CompressedImage) { secondCalls++ })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	unsubs := sent.unsubscribes()
	if len(unsubs) != 1 || unsubs[0].ID != first.ID() {
		t.Fatalf("Expected prior subscription to be unsubscribed, got %+v", unsubs)
	}

	reg.Deliver("/front", json.RawMessage(imageMsg))
	if firstCalls != 0 || secondCalls != 1 {
		t.Errorf("Expected delivery only to the new handle, got first=%d second=%d", firstCalls, secondCalls)
	}

	// Disposing the replaced handle must not touch the live one
	first.Dispose()
	if len(sent.unsubscribes()) != 1 {
		t.Errorf("Expected stale Dispose to be a no-op")
	}
	if topics := reg.SubscribedTopics(); len(topics) != 1 {
		t.Errorf("Expected live subscription to remain, got %v", topics)
	}

	second.Dispose()
	second.Dispose()
	if len(sent.unsubscribes()) != 2 {
		t.Errorf("Expected exactly one unsubscribe for the live handle")
	}

	var nilSub *Subscription
	nilSub.Dispose()
}

func TestRegistryThrottlesDelivery(t *testing.T) {
	reg := NewRegistry("conn-1", (&sentOps{}).send, time.Hour, testLogger())

	calls := 0
	_, err := reg.Subscribe("/front", func(rosmsg.CompressedImage) { calls++ })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		reg.Deliver("/front", json.RawMessage(imageMsg))
	}
	if calls != 1 {
		t.Errorf("Expected one delivery within the interval, got %d", calls)
	}

	stats := reg.TopicStats()["/front"]
	if stats.StatCount != 5 || stats.Delivered != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestRegistryThrottleRequestedFromBridge(t *testing.T) {
	sent := &sentOps{}
	reg := NewRegistry("conn-1", sent.send, 66*time.Millisecond, testLogger())

	if _, err := reg.Subscribe("/rear", func(rosmsg.CompressedImage) {}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub, ok := sent.ops[0].(rosmsg.Subscribe)
	if !ok {
		t.Fatalf("Expected a subscribe op, got %T", sent.ops[0])
	}
	if sub.ThrottleRate != 66 || sub.Type != rosmsg.TypeCompressedImage {
		t.Errorf("Unexpected subscribe op: %+v", sub)
	}
}

func TestReleasedRegistry(t *testing.T) {
	sent := &sentOps{}
	reg := NewRegistry("conn-1", sent.send, 0, testLogger())
	reg.Advertise(Channel{Name: ChannelVelocity, Topic: "/cmd", Type: rosmsg.TypeTwistStamped})

	calls := 0
	sub, _ := reg.Subscribe("/front", func(rosmsg.CompressedImage) { calls++ })

	reg.Release()
	reg.Release()

	if !reg.Released() {
		t.Errorf("Expected registry to report released")
	}
	if reg.Publish(ChannelVelocity, rosmsg.PlanarTwist(1, 0)) {
		t.Errorf("Expected publish through a released registry to be dropped")
	}
	if _, err := reg.Subscribe("/front", func(rosmsg.CompressedImage) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	reg.Deliver("/front", json.RawMessage(imageMsg))
	if calls != 0 {
		t.Errorf("Expected no delivery after release")
	}

	before := len(sent.ops)
	sub.Dispose()
	if len(sent.ops) != before {
		t.Errorf("Expected Dispose after release to send nothing")
	}
	if len(reg.Channels()) != 0 || len(reg.SubscribedTopics()) != 0 {
		t.Errorf("Expected every channel released")
	}
}

func TestInFlightPayloadDiscardedAfterDispose(t *testing.T) {
	reg := NewRegistry("conn-1", (&sentOps{}).send, 0, testLogger())

	calls := 0
	first, _ := reg.Subscribe("/front", func(rosmsg.CompressedImage) { calls++ })
	first.Dispose()
	reg.dispatch(first, json.RawMessage(imageMsg))

	second, _ := reg.Subscribe("/front", func(rosmsg.CompressedImage) { calls += 10 })
	replacement, _ := reg.Subscribe("/front", func(rosmsg.CompressedImage) {})
	reg.dispatch(second, json.RawMessage(imageMsg))

	reg.dispatch(replacement, json.RawMessage(imageMsg))
	reg.Release()
	reg.dispatch(replacement, json.RawMessage(imageMsg))

	if calls != 0 {
		t.Errorf("Expected stale payloads discarded, handler calls=%d", calls)
	}
	if d := reg.TopicStats()["/front"].Delivered; d != 1 {
		t.Errorf("Expected only the live delivery counted, got %d", d)
	}
}

func TestPublishUnknownChannel(t *testing.T) {
	reg := NewRegistry("conn-1", (&sentOps{}).send, 0, testLogger())
	if reg.Publish("missing", nil) {
		t.Errorf("Expected publish on an unknown channel to be refused")
	}
}
