package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

// Publish channel names.
const (
	ChannelVelocity = "velocityCommand"
	ChannelActuator = "actuatorCommand"
)

// Channel is a typed publish endpoint.
type Channel struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// TopicInfo holds receive statistics for a subscribed topic
type TopicInfo struct {
	Topic        string `json:"topic"`
	MessageType  string `json:"type"`
	StatCount    int64  `json:"count"`
	Delivered    int64  `json:"delivered"`
	LastReceived int64  `json:"last_received"`
}

// PayloadHandler receives decoded image payloads for a subscription.
type PayloadHandler func(img rosmsg.CompressedImage)

// Subscription is a live handle on one subscribed topic.
type Subscription struct {
	id       string
	topic    string
	registry *Registry
	handler  PayloadHandler
	limiter  *rate.Sometimes
}

// ID returns the subscription id sent to the bridge.
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Dispose unregisters the subscription. It is idempotent and safe on nil.
func (s *Subscription) Dispose() {
	if s == nil || s.registry == nil {
		return
	}
	s.registry.remove(s)
}

// Registry holds the channels bound to one connection. Once released it
// drops every publish and refuses new subscriptions.
type Registry struct {
	connID   string
	send     func(op interface{}) bool
	throttle time.Duration
	logger   customlog.Logger

	mu       sync.RWMutex
	channels map[string]Channel
	subs     map[string]*Subscription
	topics   map[string]*TopicInfo
	released bool
}

// NewRegistry creates a registry for connection connID. send encodes and
// queues an operation on that connection.
func NewRegistry(connID string, send func(op interface{}) bool, throttle time.Duration, logger customlog.Logger) *Registry {
	return &Registry{
		connID:   connID,
		send:     send,
		throttle: throttle,
		logger:   logger,
		channels: make(map[string]Channel),
		subs:     make(map[string]*Subscription),
		topics:   make(map[string]*TopicInfo),
	}
}

// ConnectionID returns the connection the registry is bound to.
func (r *Registry) ConnectionID() string {
	return r.connID
}

// Advertise declares a publish channel on the bridge.
func (r *Registry) Advertise(ch Channel) bool {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return false
	}
	r.channels[ch.Name] = ch
	r.mu.Unlock()

	return r.send(rosmsg.NewAdvertise(ch.Topic, ch.Type))
}

// Publish sends msg on the named channel. It reports false when the
// registry is released, the channel is unknown or the queue refused it.
func (r *Registry) Publish(name string, msg interface{}) bool {
	r.mu.RLock()
	ch, ok := r.channels[name]
	released := r.released
	r.mu.RUnlock()

	if released || !ok {
		return false
	}
	return r.send(rosmsg.NewPublish(ch.Topic, msg))
}

// Subscribe registers handler for topic, replacing any prior subscription.
func (r *Registry) Subscribe(topic string, handler PayloadHandler) (*Subscription, error) {
	sub := &Subscription{
		id:       "subscribe:" + topic + ":" + uuid.NewString(),
		topic:    topic,
		registry: r,
		handler:  handler,
	}
	if r.throttle > 0 {
		sub.limiter = &rate.Sometimes{Interval: r.throttle}
	}

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil, ErrNotConnected
	}
	prior := r.subs[topic]
	r.subs[topic] = sub
	if _, exists := r.topics[topic]; !exists {
		r.topics[topic] = &TopicInfo{Topic: topic, MessageType: rosmsg.TypeCompressedImage}
	}
	r.mu.Unlock()

	if prior != nil {
		r.logger.Debugf("Replacing subscription %s on %s", prior.id, topic)
		r.send(rosmsg.NewUnsubscribe(prior.id, topic))
	}

	throttleMs := int(r.throttle / time.Millisecond)
	if !r.send(rosmsg.NewSubscribe(sub.id, topic, rosmsg.TypeCompressedImage, throttleMs)) {
		r.logger.Warnf("Subscribe request for %s was not queued", topic)
	}
	return sub, nil
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	current, ok := r.subs[sub.topic]
	if !ok || current != sub {
		r.mu.Unlock()
		return
	}
	delete(r.subs, sub.topic)
	released := r.released
	r.mu.Unlock()

	if !released {
		r.send(rosmsg.NewUnsubscribe(sub.id, sub.topic))
	}
}

// Deliver hands an incoming message for topic to its subscription,
// honoring the delivery interval.
func (r *Registry) Deliver(topic string, raw json.RawMessage) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	sub := r.subs[topic]
	if info, ok := r.topics[topic]; ok {
		info.StatCount++
		info.LastReceived = time.Now().UnixNano()
	}
	r.mu.Unlock()

	if sub == nil {
		return
	}

	if sub.limiter == nil {
		r.dispatch(sub, raw)
		return
	}
	sub.limiter.Do(func() { r.dispatch(sub, raw) })
}

// dispatch decodes raw and hands it to sub if sub is still the live
// subscription for its topic.
func (r *Registry) dispatch(sub *Subscription, raw json.RawMessage) {
	var img rosmsg.CompressedImage
	if err := json.Unmarshal(raw, &img); err != nil {
		r.logger.Warnf("Failed to decode payload on %s: %v", sub.topic, err)
		return
	}

	r.mu.Lock()
	if r.released || r.subs[sub.topic] != sub {
		r.mu.Unlock()
		return
	}
	if info, ok := r.topics[sub.topic]; ok {
		info.Delivered++
	}
	r.mu.Unlock()

	sub.handler(img)
}

// Release invalidates every channel and subscription at once.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return
	}
	r.released = true
	r.channels = make(map[string]Channel)
	r.subs = make(map[string]*Subscription)
	r.logger.Debugf("Released channel registry for connection %s", r.connID)
}

// Released reports whether the registry has been released.
func (r *Registry) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// Channels returns the advertised publish channels.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	return channels
}

// SubscribedTopics returns the topics with a live subscription.
func (r *Registry) SubscribedTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	return topics
}

// TopicStats returns a copy of the receive statistics
func (r *Registry) TopicStats() map[string]TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]TopicInfo, len(r.topics))
	for topic, info := range r.topics {
		stats[topic] = *info
	}
	return stats
}
