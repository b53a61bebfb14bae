package bridge

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
)

// fakeConn is an in-memory Conn. Reads come from inbox; writes are recorded.
type fakeConn struct {
	inbox  chan []byte
	errs   chan error
	closed chan struct{}

	mu        sync.Mutex
	writes    [][]byte
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbox:
		return 1, data, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ops decodes every written frame.
func (c *fakeConn) ops() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make([]map[string]interface{}, 0, len(c.writes))
	for _, w := range c.writes {
		var op map[string]interface{}
		if err := json.Unmarshal(w, &op); err == nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func (c *fakeConn) opsNamed(name string) []map[string]interface{} {
	var matched []map[string]interface{}
	for _, op := range c.ops() {
		if op["op"] == name {
			matched = append(matched, op)
		}
	}
	return matched
}

type dialResult struct {
	conn Conn
	err  error
}

// fakeDialer blocks each Dial until the test releases that URL.
type fakeDialer struct {
	mu      sync.Mutex
	pending map[string]chan dialResult
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{pending: make(map[string]chan dialResult)}
}

func (d *fakeDialer) gate(url string) chan dialResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.pending[url]
	if !ok {
		ch = make(chan dialResult, 1)
		d.pending[url] = ch
	}
	return ch
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	select {
	case res := <-d.gate(url):
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) complete(url string, conn Conn, err error) {
	d.gate(url) <- dialResult{conn: conn, err: err}
}

func testBridgeConfig() config.BridgeConfig {
	cfg := config.Default().Bridge
	cfg.HandshakeTimeoutMs = 0
	return cfg
}

func testLogger() customlog.Logger {
	nullLogger, _ := test.NewNullLogger()
	return customlog.Wrap(nullLogger)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// statusRecorder collects status notifications.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, len(r.statuses))
	for i, st := range r.statuses {
		states[i] = st.State
	}
	return states
}

func timeoutAfter() <-chan time.Time {
	return time.After(2 * time.Second)
}
