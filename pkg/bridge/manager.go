// Package bridge owns the single rosbridge connection of the console: its
// lifecycle, the publish channels bound to it and the topic subscriptions
// delivered from it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

var (
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("bridge not connected")
	// ErrRemoteClosed marks a transport closed by the peer.
	ErrRemoteClosed = errors.New("bridge closed the connection")
)

// Stats summarizes outbound traffic and inbound topics.
type Stats struct {
	MessagesSent int64                `json:"messages_sent"`
	LastSent     time.Time            `json:"last_sent"`
	Queued       int64                `json:"queued"`
	Dropped      int64                `json:"dropped"`
	Suppressed   int64                `json:"suppressed"`
	WriteErrors  int64                `json:"write_errors"`
	QueueLength  int                  `json:"queue_length"`
	Topics       map[string]TopicInfo `json:"topics"`
	Channels     []Channel            `json:"channels"`
}

// session holds everything bound to one transport.
type session struct {
	conn     Conn
	queue    *sendQueue
	registry *Registry
	cancel   context.CancelFunc
}

func (s *session) close() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.registry != nil {
		s.registry.Release()
	}
	if s.queue != nil {
		s.queue.stop()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// Manager is the only owner of the bridge transport.
type Manager struct {
	cfg    config.BridgeConfig
	dialer Dialer
	logger customlog.Logger

	mu         sync.Mutex
	generation uint64
	status     Status
	active     *session
	listeners  []StatusListener
	pending    []Status
	flushing   bool
	lastTopics map[string]TopicInfo

	metrics    QueueMetrics
	suppressed int64
}

// NewManager creates a disconnected manager.
func NewManager(cfg config.BridgeConfig, dialer Dialer, logger customlog.Logger) *Manager {
	if dialer == nil {
		dialer = WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout()}
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		status: Status{State: StateDisconnected, Since: time.Now()},
	}
}

// OnStatus registers a listener. Listeners run outside the manager lock, in
// the order the changes happened.
func (m *Manager) OnStatus(listener StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Status returns the current snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// State returns the current state.
func (m *Manager) State() State {
	return m.Status().State
}

// Connect tears down any current connection and starts a handshake with
// url, or the configured URL when url is empty. It returns immediately.
func (m *Manager) Connect(url string) {
	if url == "" {
		url = m.cfg.URL
	}

	m.mu.Lock()
	prior := m.detachLocked()
	gen := m.generation
	connID := uuid.NewString()

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout := m.cfg.HandshakeTimeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.active = &session{cancel: cancel}
	m.setStatusLocked(Status{State: StateConnecting, URL: url, ConnectionID: connID, Generation: gen})
	m.mu.Unlock()

	prior.close()
	m.logger.Infof("Connecting to bridge at %s (connection %s)", url, connID)
	m.flush()

	go m.handshake(ctx, gen, connID, url)
}

// Disconnect closes the connection and releases every channel. It is safe
// to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prior := m.detachLocked()
	if m.status.State != StateDisconnected {
		m.setStatusLocked(Status{State: StateDisconnected, URL: m.status.URL, Generation: m.generation})
	}
	m.mu.Unlock()

	if prior != nil {
		m.logger.Infof("Disconnected from bridge")
	}
	prior.close()
	m.flush()
}

// Close is Disconnect, for shutdown paths.
func (m *Manager) Close() error {
	m.Disconnect()
	return nil
}

// PublishTwist publishes a stamped velocity on the velocity channel.
// It reports false, without error, unless connected.
func (m *Manager) PublishTwist(twist rosmsg.Twist) bool {
	msg := rosmsg.TwistStamped{
		Header: rosmsg.Header{Stamp: rosmsg.NewTime(time.Now()), FrameID: m.cfg.FrameID},
		Twist:  twist,
	}
	return m.publish(ChannelVelocity, msg)
}

// PublishActuator publishes a single-element position array on the
// actuator channel.
func (m *Manager) PublishActuator(position float64) bool {
	return m.publish(ChannelActuator, rosmsg.NewFloat64Array(position))
}

// Subscribe subscribes to an image topic on the current connection.
func (m *Manager) Subscribe(topic string, handler PayloadHandler) (*Subscription, error) {
	m.mu.Lock()
	if m.status.State != StateConnected || m.active == nil || m.active.registry == nil {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	registry := m.active.registry
	m.mu.Unlock()

	return registry.Subscribe(topic, handler)
}

// Stats returns traffic counters and the topic statistics of the current
// (or last) connection.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	topics := m.lastTopics
	var channels []Channel
	queueLength := 0
	if m.active != nil && m.active.registry != nil {
		topics = m.active.registry.TopicStats()
		channels = m.active.registry.Channels()
		queueLength = m.active.queue.length()
	}
	suppressed := m.suppressed
	m.mu.Unlock()

	stats := Stats{
		MessagesSent: m.metrics.SentCount.Load(),
		Queued:       m.metrics.QueuedCount.Load(),
		Dropped:      m.metrics.DroppedCount.Load(),
		Suppressed:   suppressed,
		WriteErrors:  m.metrics.ErrorCount.Load(),
		QueueLength:  queueLength,
		Topics:       topics,
		Channels:     channels,
	}
	if last := m.metrics.LastSentTime.Load(); last > 0 {
		stats.LastSent = time.Unix(0, last)
	}
	if stats.Topics == nil {
		stats.Topics = map[string]TopicInfo{}
	}
	return stats
}

// Catalog returns the publish channels instantiated on every connection.
func (m *Manager) Catalog() []Channel {
	return []Channel{
		{Name: ChannelVelocity, Topic: m.cfg.VelocityTopic, Type: rosmsg.TypeTwistStamped},
		{Name: ChannelActuator, Topic: m.cfg.ActuatorTopic, Type: rosmsg.TypeFloat64MultiArray},
	}
}

func (m *Manager) publish(channel string, msg interface{}) bool {
	m.mu.Lock()
	var registry *Registry
	if m.status.State == StateConnected && m.active != nil {
		registry = m.active.registry
	}
	if registry == nil {
		m.suppressed++
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	return registry.Publish(channel, msg)
}

func (m *Manager) handshake(ctx context.Context, gen uint64, connID, url string) {
	conn, err := m.dialer.Dial(ctx, url)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		m.logger.Debugf("Discarding stale handshake for connection %s", connID)
		return
	}

	if err != nil {
		failed := m.detachLocked()
		m.setStatusLocked(Status{State: StateFailed, Reason: err.Error(), URL: url, ConnectionID: connID, Generation: m.generation})
		m.mu.Unlock()

		m.logger.Errorf("Bridge handshake failed: %v", err)
		failed.close()
		m.flush()
		return
	}

	catalog := m.Catalog()
	name := "bridge[" + connID[:8] + "]"
	queue := newSendQueue(name, conn, m.cfg.SendQueueSize+len(catalog), &m.metrics, m.logger, func(err error) {
		m.transportFailed(gen, err)
	})
	registry := NewRegistry(connID, func(op interface{}) bool {
		data, err := json.Marshal(op)
		if err != nil {
			m.logger.Errorf("Failed to encode bridge operation: %v", err)
			return false
		}
		return queue.enqueue(data)
	}, m.cfg.ImageThrottle(), m.logger.WithField("connection", connID[:8]))

	m.active.conn = conn
	m.active.queue = queue
	m.active.registry = registry

	for _, ch := range catalog {
		registry.Advertise(ch)
	}
	queue.start()
	m.setStatusLocked(Status{State: StateConnected, URL: url, ConnectionID: connID, Generation: gen})
	m.mu.Unlock()

	m.logger.Infof("Connected to bridge at %s", url)
	go m.readLoop(gen, conn, registry)
	m.flush()
}

func (m *Manager) readLoop(gen uint64, conn Conn, registry *Registry) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.transportFailed(gen, err)
			return
		}
		if !m.isCurrent(gen) {
			return
		}

		var in rosmsg.Incoming
		if err := json.Unmarshal(data, &in); err != nil {
			m.logger.Warnf("Ignoring malformed bridge message: %v", err)
			continue
		}

		switch in.Op {
		case rosmsg.OpPublish:
			registry.Deliver(in.Topic, in.Msg)
		case rosmsg.OpStatus:
			m.logger.Infof("Bridge status [%s]: %s", in.Level, in.Message)
		default:
			m.logger.Debugf("Ignoring bridge op %q", in.Op)
		}
	}
}

// transportFailed tears down the connection of generation gen after a read
// or write error. A peer close leaves the manager disconnected; anything
// else fails it.
func (m *Manager) transportFailed(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.status.State != StateConnected {
		m.mu.Unlock()
		return
	}
	prior := m.detachLocked()
	url, connID := m.status.URL, m.status.ConnectionID
	if isRemoteClose(err) {
		m.setStatusLocked(Status{State: StateDisconnected, URL: url, Generation: m.generation})
	} else {
		m.setStatusLocked(Status{State: StateFailed, Reason: err.Error(), URL: url, ConnectionID: connID, Generation: m.generation})
	}
	m.mu.Unlock()

	if isRemoteClose(err) {
		m.logger.Warnf("Bridge connection %s closed: %v", connID, err)
	} else {
		m.logger.Errorf("Bridge connection %s failed: %v", connID, err)
	}
	prior.close()
	m.flush()
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

// detachLocked invalidates the current generation and hands back the
// resources to close. The registry is released before the lock drops.
func (m *Manager) detachLocked() *session {
	m.generation++
	prior := m.active
	m.active = nil
	if prior != nil && prior.registry != nil {
		m.lastTopics = prior.registry.TopicStats()
		prior.registry.Release()
	}
	return prior
}

func (m *Manager) setStatusLocked(st Status) {
	st.Since = time.Now()
	m.status = st
	m.pending = append(m.pending, st)
}

// flush delivers pending status changes in order. A caller that finds
// another flush running leaves its change to that flusher.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.pending) > 0 {
		st := m.pending[0]
		m.pending = m.pending[1:]
		listeners := make([]StatusListener, len(m.listeners))
		copy(listeners, m.listeners)
		m.mu.Unlock()

		for _, listener := range listeners {
			listener(st)
		}

		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}
