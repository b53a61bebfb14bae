// Package relay mirrors console commands and connection changes to external
// observers over ZeroMQ and MQTT.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-teleop/console/pkg/bridge"
	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

// ErrRelayClosed is returned when publishing on a closed relay.
var ErrRelayClosed = errors.New("relay is closed")

// Relay topics, joined to the configured prefix by each transport.
const (
	TopicVelocity   = "velocity"
	TopicActuator   = "actuator"
	TopicConnection = "connection"
)

// Event types
const (
	EventVelocity   = "VELOCITY"
	EventActuator   = "ACTUATOR"
	EventConnection = "CONNECTION"
)

// Event is the JSON envelope written to every relay.
type Event struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Relay publishes payloads on a topic.
type Relay interface {
	Publish(topic string, payload []byte) error
	Close() error
	Name() string
}

// Multi fans a publish out to several relays.
type Multi []Relay

// Publish sends to every relay and joins their errors.
func (m Multi) Publish(topic string, payload []byte) error {
	var errs []error
	for _, r := range m {
		if err := r.Publish(topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every relay.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name implements Relay
func (m Multi) Name() string {
	return fmt.Sprintf("multi(%d)", len(m))
}

// New opens the relays enabled in cfg. It returns nil when none is.
func New(cfg config.RelayConfig, logger customlog.Logger) (Relay, error) {
	var relays Multi

	if cfg.ZeroMQAddress != "" {
		z, err := NewZeroMQRelay(cfg.ZeroMQAddress, cfg.TopicPrefix, logger)
		if err != nil {
			return nil, err
		}
		relays = append(relays, z)
	}

	if cfg.MQTTBroker != "" {
		m, err := NewMQTTRelay(cfg, logger)
		if err != nil {
			relays.Close()
			return nil, err
		}
		relays = append(relays, m)
	}

	switch len(relays) {
	case 0:
		return nil, nil
	case 1:
		return relays[0], nil
	}
	return relays, nil
}

// Target is the command sink the Publisher decorates.
type Target interface {
	PublishTwist(twist rosmsg.Twist) bool
	PublishActuator(position float64) bool
}

// relayQueueSize bounds the events waiting for a slow relay.
const relayQueueSize = 64

type relayEvent struct {
	topic   string
	payload []byte
}

// Publisher forwards commands to the bridge and mirrors the accepted ones
// to a relay. Events are handed to a single relay goroutine through a bounded
// queue, so a stalled broker never holds up the bridge path. Events that do
// not fit in the queue are dropped and counted.
type Publisher struct {
	next   Target
	relay  Relay
	logger customlog.Logger

	queue chan relayEvent
	wg    sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	failures int64
	dropped  int64
}

// NewPublisher wraps next. A nil relay makes it a pass-through.
func NewPublisher(next Target, relay Relay, logger customlog.Logger) *Publisher {
	p := &Publisher{next: next, relay: relay, logger: logger}
	if relay != nil {
		p.queue = make(chan relayEvent, relayQueueSize)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// PublishTwist implements the command publisher.
func (p *Publisher) PublishTwist(twist rosmsg.Twist) bool {
	ok := p.next.PublishTwist(twist)
	if ok {
		p.emit(TopicVelocity, EventVelocity, map[string]float64{
			"linear":  twist.Linear.X,
			"angular": twist.Angular.Z,
		})
	}
	return ok
}

// PublishActuator implements the command publisher.
func (p *Publisher) PublishActuator(position float64) bool {
	ok := p.next.PublishActuator(position)
	if ok {
		p.emit(TopicActuator, EventActuator, map[string]float64{"position": position})
	}
	return ok
}

// OnStatus mirrors connection state changes. It matches bridge.StatusListener.
func (p *Publisher) OnStatus(st bridge.Status) {
	p.emit(TopicConnection, EventConnection, st)
}

// Failures returns the number of relay events that were lost, either to a
// failed publish or to a full queue.
func (p *Publisher) Failures() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Dropped returns the number of events discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting events and waits for the queued ones to be relayed.
// It does not close the relay itself.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed || p.queue == nil {
		p.closed = true
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher) emit(topic, eventType string, data interface{}) {
	if p.relay == nil {
		return
	}

	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      data,
	})
	if err != nil {
		p.logger.Errorf("Failed to encode relay event: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- relayEvent{topic: topic, payload: payload}:
	default:
		p.dropped++
		p.failures++
		p.logger.Debugf("Relay queue full, dropped %s event", topic)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		if err := p.relay.Publish(ev.topic, ev.payload); err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			p.logger.Warnf("Relay publish on %s failed: %v", ev.topic, err)
		}
	}
}
