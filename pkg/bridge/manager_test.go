package bridge

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/open-teleop/console/pkg/rosmsg"
)

func connectFake(t *testing.T, m *Manager, d *fakeDialer, url string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	m.Connect(url)
	d.complete(url, conn, nil)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	return conn
}

func TestConnectAdvertisesCatalog(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	rec := &statusRecorder{}
	m.OnStatus(rec.record)

	conn := connectFake(t, m, d, "ws://robot:9090")
	waitFor(t, "advertise ops", func() bool { return len(conn.opsNamed("advertise")) == 2 })

	ads := conn.opsNamed("advertise")
	if ads[0]["topic"] != "/ackerman_controller/reference" || ads[0]["type"] != rosmsg.TypeTwistStamped {
		t.Errorf("Unexpected velocity advertise: %v", ads[0])
	}
	if ads[1]["topic"] != "/dumper_box_controller/commands" || ads[1]["type"] != rosmsg.TypeFloat64MultiArray {
		t.Errorf("Unexpected actuator advertise: %v", ads[1])
	}

	st := m.Status()
	if st.URL != "ws://robot:9090" || st.ConnectionID == "" {
		t.Errorf("Unexpected status: %+v", st)
	}
	waitFor(t, "status notifications", func() bool { return len(rec.states()) == 2 })
	if got := rec.states(); !reflect.DeepEqual(got, []State{StateConnecting, StateConnected}) {
		t.Errorf("Expected connecting then connected, got %v", got)
	}
}

func TestStaleHandshakeIsDiscarded(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())

	m.Connect("ws://a:9090")
	m.Connect("ws://b:9090")

	connB := newFakeConn()
	d.complete("ws://b:9090", connB, nil)
	waitFor(t, "connected to B", func() bool { return m.State() == StateConnected })

	// A completes late. The earlier attempt was cancelled, so the dialer may
	// never pick this up; drive a stale completion directly as well.
	connA := newFakeConn()
	d.complete("ws://a:9090", connA, nil)
	staleGen := m.Status().Generation - 1
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	m.handshake(ctx, staleGen, "00000000-stale", "ws://a:9090")

	st := m.Status()
	if st.State != StateConnected || st.URL != "ws://b:9090" {
		t.Fatalf("Expected to stay connected to B, got %+v", st)
	}
	if !connA.isClosed() {
		t.Errorf("Expected stale connection A to be closed")
	}
	if connB.isClosed() {
		t.Errorf("Expected connection B to stay open")
	}
	if len(connA.ops()) != 0 {
		t.Errorf("Expected nothing written to stale connection, got %d frames", len(connA.ops()))
	}
}

func TestHandshakeFailure(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())

	m.Connect("ws://nowhere:9090")
	d.complete("ws://nowhere:9090", nil, errors.New("connection refused"))
	waitFor(t, "failed", func() bool { return m.State() == StateFailed })

	if !strings.Contains(m.Status().Reason, "connection refused") {
		t.Errorf("Expected failure reason, got %q", m.Status().Reason)
	}
	if _, err := m.Subscribe("/front", func(rosmsg.CompressedImage) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	m.Disconnect()
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected after failure, got %s", m.State())
	}
}

func TestPublishAfterDisconnectIsNoop(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	conn := connectFake(t, m, d, "ws://robot:9090")

	if !m.PublishTwist(rosmsg.PlanarTwist(1, 0)) {
		t.Fatalf("Expected publish while connected to be accepted")
	}
	waitFor(t, "publish written", func() bool { return len(conn.opsNamed("publish")) == 1 })

	m.Disconnect()
	if !conn.isClosed() {
		t.Errorf("Expected transport closed on disconnect")
	}
	written := len(conn.ops())

	if m.PublishTwist(rosmsg.PlanarTwist(1, 0)) {
		t.Errorf("Expected publish after disconnect to be refused")
	}
	if m.PublishActuator(0.5) {
		t.Errorf("Expected actuator publish after disconnect to be refused")
	}
	if len(conn.ops()) != written {
		t.Errorf("Expected no frames after disconnect")
	}
	if got := m.Stats().Suppressed; got != 2 {
		t.Errorf("Expected 2 suppressed publishes, got %d", got)
	}

	// Disconnect twice is harmless
	m.Disconnect()
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestPublishWireFormat(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	conn := connectFake(t, m, d, "ws://robot:9090")

	m.PublishTwist(rosmsg.PlanarTwist(0.5, -0.25))
	m.PublishActuator(0.1)
	waitFor(t, "publishes written", func() bool { return len(conn.opsNamed("publish")) == 2 })

	pubs := conn.opsNamed("publish")
	twist := pubs[0]
	if twist["topic"] != "/ackerman_controller/reference" {
		t.Errorf("Unexpected twist topic: %v", twist["topic"])
	}
	msg := twist["msg"].(map[string]interface{})
	header := msg["header"].(map[string]interface{})
	if header["frame_id"] != "base_link" {
		t.Errorf("Expected frame_id base_link, got %v", header["frame_id"])
	}
	if stamp := header["stamp"].(map[string]interface{}); stamp["sec"].(float64) <= 0 {
		t.Errorf("Expected wall-clock stamp, got %v", stamp)
	}
	body := msg["twist"].(map[string]interface{})
	if body["linear"].(map[string]interface{})["x"] != 0.5 || body["angular"].(map[string]interface{})["z"] != -0.25 {
		t.Errorf("Unexpected twist body: %v", body)
	}

	arr := pubs[1]["msg"].(map[string]interface{})
	if data := arr["data"].([]interface{}); len(data) != 1 || data[0] != 0.1 {
		t.Errorf("Unexpected actuator data: %v", arr["data"])
	}
	if dim := arr["layout"].(map[string]interface{})["dim"].([]interface{}); len(dim) != 0 {
		t.Errorf("Expected empty layout dims, got %v", dim)
	}

	waitFor(t, "sent counter", func() bool { return m.Stats().MessagesSent == 4 })
	if m.Stats().LastSent.IsZero() {
		t.Errorf("Expected a last-sent timestamp")
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	conn := connectFake(t, m, d, "ws://robot:9090")

	conn.errs <- io.EOF
	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })

	if m.PublishTwist(rosmsg.PlanarTwist(1, 0)) {
		t.Errorf("Expected publish refused after remote close")
	}
	if !conn.isClosed() {
		t.Errorf("Expected transport released after remote close")
	}
}

func TestTransportErrorFails(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	conn := connectFake(t, m, d, "ws://robot:9090")

	conn.errs <- errors.New("connection reset by peer")
	waitFor(t, "failed", func() bool { return m.State() == StateFailed })

	if !strings.Contains(m.Status().Reason, "reset") {
		t.Errorf("Expected reason to carry the transport error, got %q", m.Status().Reason)
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(testBridgeConfig(), d, testLogger())
	first := connectFake(t, m, d, "ws://robot:9090")
	firstID := m.Status().ConnectionID

	second := connectFake(t, m, d, "ws://robot:9090")
	if !first.isClosed() {
		t.Errorf("Expected first connection to be closed on reconnect")
	}
	if m.Status().ConnectionID == firstID {
		t.Errorf("Expected a new connection id")
	}

	m.PublishTwist(rosmsg.PlanarTwist(1, 0))
	waitFor(t, "publish on second", func() bool { return len(second.opsNamed("publish")) == 1 })
}

func TestSubscribeDeliversPayload(t *testing.T) {
	cfg := testBridgeConfig()
	cfg.ImageThrottleMs = 0
	d := newFakeDialer()
	m := NewManager(cfg, d, testLogger())
	conn := connectFake(t, m, d, "ws://robot:9090")

	received := make(chan rosmsg.CompressedImage, 1)
	sub, err := m.Subscribe("/front_cam/image_raw/compressed", func(img rosmsg.CompressedImage) {
		received <- img
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitFor(t, "subscribe op", func() bool { return len(conn.opsNamed("subscribe")) == 1 })
	if id := conn.opsNamed("subscribe")[0]["id"]; id != sub.ID() {
		t.Errorf("Expected subscribe id %s, got %v", sub.ID(), id)
	}

	conn.inbox <- []byte(`{"op":"publish","topic":"/front_cam/image_raw/compressed","msg":{"format":"jpeg","data":"AQID"}}`)
	img := <-received
	if img.Format != "jpeg" || string(img.Data) != "\x01\x02\x03" {
		t.Errorf("Unexpected payload: %+v", img)
	}

	stats := m.Stats().Topics["/front_cam/image_raw/compressed"]
	if stats.StatCount != 1 || stats.Delivered != 1 {
		t.Errorf("Unexpected topic stats: %+v", stats)
	}

	m.Disconnect()
	sub.Dispose()
	if len(conn.opsNamed("unsubscribe")) != 0 {
		t.Errorf("Expected no unsubscribe on a released connection")
	}
}
