package relay

import (
	"fmt"
	"sync"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/console/pkg/log"
)

// ZeroMQRelay publishes two-frame (topic, payload) messages on a PUB socket.
type ZeroMQRelay struct {
	socket  *zmq4.Socket
	address string
	prefix  string
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

// NewZeroMQRelay binds a PUB socket to address.
func NewZeroMQRelay(address, prefix string, logger customlog.Logger) (*ZeroMQRelay, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("ZeroMQ relay publishing on %s", address)

	return &ZeroMQRelay{
		socket:  socket,
		address: address,
		prefix:  prefix,
		logger:  logger,
		running: true,
	}, nil
}

// Publish sends the topic frame, then the payload frame.
func (r *ZeroMQRelay) Publish(topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrRelayClosed
	}

	if _, err := r.socket.Send(r.Topic(topic), zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := r.socket.SendBytes(payload, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Topic returns the wire topic for a relay topic.
func (r *ZeroMQRelay) Topic(topic string) string {
	if r.prefix == "" {
		return topic
	}
	return r.prefix + "." + topic
}

// Close releases the socket. Further publishes fail with ErrRelayClosed.
func (r *ZeroMQRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.logger.Infof("Closing ZeroMQ relay on %s", r.address)
	return r.socket.Close()
}

// Name implements Relay
func (r *ZeroMQRelay) Name() string {
	return "zeromq"
}
