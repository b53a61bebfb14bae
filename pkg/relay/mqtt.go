package relay

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
)

const (
	mqttQoS            = 1
	mqttPublishTimeout = 2 * time.Second
)

// MQTTRelay publishes relay events to an MQTT broker.
type MQTTRelay struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
	logger  customlog.Logger

	mu     sync.Mutex
	closed bool
}

// NewMQTTRelay connects to the broker in cfg.
func NewMQTTRelay(cfg config.RelayConfig, logger customlog.Logger) (*MQTTRelay, error) {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "open-teleop-console-" + uuid.NewString()[:8]
	}
	logger = logger.WithField("component", "mqtt_relay")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("MQTT connection lost, reconnecting: %v", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Infof("Connected to MQTT broker %s", cfg.MQTTBroker)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTTRelay(client, cfg.TopicPrefix, logger), nil
}

func newMQTTRelay(client mqtt.Client, prefix string, logger customlog.Logger) *MQTTRelay {
	return &MQTTRelay{
		client:  client,
		prefix:  prefix,
		timeout: mqttPublishTimeout,
		logger:  logger,
	}
}

// Publish sends payload with QoS 1, waiting at most the publish timeout.
func (r *MQTTRelay) Publish(topic string, payload []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRelayClosed
	}

	if !r.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := r.client.Publish(r.Topic(topic), mqttQoS, false, payload)
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("MQTT publish timed out after %v", r.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish failed: %w", err)
	}
	return nil
}

// Topic returns the broker topic for a relay topic.
func (r *MQTTRelay) Topic(topic string) string {
	if r.prefix == "" {
		return topic
	}
	return r.prefix + "/" + topic
}

// Close disconnects from the broker.
func (r *MQTTRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.client.IsConnected() {
		r.client.Disconnect(250)
		r.logger.Infof("MQTT relay disconnected")
	}
	return nil
}

// Name implements Relay
func (r *MQTTRelay) Name() string {
	return "mqtt"
}
