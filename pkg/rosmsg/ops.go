package rosmsg

import "encoding/json"

// rosbridge v2 protocol operations used by the console.
const (
	OpAdvertise   = "advertise"
	OpUnadvertise = "unadvertise"
	OpPublish     = "publish"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpStatus      = "status"
)

// Advertise declares a publisher for a topic.
type Advertise struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// Publish carries one message on a topic.
type Publish struct {
	Op    string      `json:"op"`
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

// Subscribe requests messages for a topic. ThrottleRate is in milliseconds.
type Subscribe struct {
	Op           string `json:"op"`
	ID           string `json:"id,omitempty"`
	Topic        string `json:"topic"`
	Type         string `json:"type,omitempty"`
	ThrottleRate int    `json:"throttle_rate,omitempty"`
	QueueLength  int    `json:"queue_length,omitempty"`
}

// Unsubscribe cancels the subscription with the given id.
type Unsubscribe struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
}

// Incoming is the envelope of any server-to-client operation.
// Msg is left raw so the receiver decodes it by topic type.
type Incoming struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Msg     json.RawMessage `json:"msg,omitempty"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
}

// NewAdvertise builds an advertise operation.
func NewAdvertise(topic, msgType string) Advertise {
	return Advertise{Op: OpAdvertise, Topic: topic, Type: msgType}
}

// NewPublish builds a publish operation.
func NewPublish(topic string, msg interface{}) Publish {
	return Publish{Op: OpPublish, Topic: topic, Msg: msg}
}

// NewSubscribe builds a subscribe operation.
func NewSubscribe(id, topic, msgType string, throttleMs int) Subscribe {
	return Subscribe{Op: OpSubscribe, ID: id, Topic: topic, Type: msgType, ThrottleRate: throttleMs, QueueLength: 1}
}

// NewUnsubscribe builds an unsubscribe operation.
func NewUnsubscribe(id, topic string) Unsubscribe {
	return Unsubscribe{Op: OpUnsubscribe, ID: id, Topic: topic}
}
