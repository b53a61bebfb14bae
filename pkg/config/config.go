package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the vehicle the console was first built for: an Ackermann
// base behind a rosbridge server with a dumper box on a position controller.
const (
	DefaultBridgeURL        = "ws://localhost:9090"
	DefaultVelocityTopic    = "/ackerman_controller/reference"
	DefaultActuatorTopic    = "/dumper_box_controller/commands"
	DefaultFrameID          = "base_link"
	DefaultImageThrottleMs  = 66
	ImageThrottleOff        = -1
	DefaultHandshakeMs      = 5000
	DefaultSendQueueSize    = 64
	DefaultHTTPPort         = 8080
	DefaultLogLevel         = "info"
	DefaultMoveSpeed        = 1.0
	DefaultTurnSpeed        = 1.0
	DefaultMaxLinear        = 2.0
	DefaultMaxAngular       = 2.0
	DefaultActuatorMax      = 0.785
	DefaultActuatorStep     = 0.05
	DefaultJoystickSize     = 240.0
	DefaultJoystickMargin   = 20.0
	DefaultRelayTopicPrefix = "console"
)

// Config is the console configuration loaded from console_config.yaml.
type Config struct {
	Logging  LoggingConfig     `yaml:"logging" json:"logging"`
	Server   ServerConfig      `yaml:"server" json:"server"`
	Bridge   BridgeConfig      `yaml:"bridge" json:"bridge"`
	Drive    DriveConfig       `yaml:"drive" json:"drive"`
	Actuator ActuatorConfig    `yaml:"actuator" json:"actuator"`
	Joystick JoystickConfig    `yaml:"joystick" json:"joystick"`
	Cameras  []CameraConfig    `yaml:"cameras" json:"cameras"`
	Relay    RelayConfig       `yaml:"relay" json:"relay"`
	KeyMap   map[string]string `yaml:"keymap,omitempty" json:"keymap,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// ServerConfig holds the operator HTTP server settings
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" json:"http_port"`
}

// BridgeConfig describes the rosbridge endpoint and the command channel catalog.
type BridgeConfig struct {
	URL                string `yaml:"url" json:"url"`
	VelocityTopic      string `yaml:"velocity_topic" json:"velocity_topic"`
	ActuatorTopic      string `yaml:"actuator_topic" json:"actuator_topic"`
	FrameID            string `yaml:"frame_id" json:"frame_id"`
	ImageThrottleMs    int    `yaml:"image_throttle_ms" json:"image_throttle_ms"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms" json:"handshake_timeout_ms"`
	SendQueueSize      int    `yaml:"send_queue_size" json:"send_queue_size"`
}

// ImageThrottle is the minimum spacing between delivered camera payloads.
// It is zero when image_throttle_ms is ImageThrottleOff.
func (b BridgeConfig) ImageThrottle() time.Duration {
	if b.ImageThrottleMs <= 0 {
		return 0
	}
	return time.Duration(b.ImageThrottleMs) * time.Millisecond
}

// HandshakeTimeout bounds a single connect attempt.
func (b BridgeConfig) HandshakeTimeout() time.Duration {
	return time.Duration(b.HandshakeTimeoutMs) * time.Millisecond
}

// DriveConfig holds the speed constants used by the command translator.
type DriveConfig struct {
	MoveSpeed  float64 `yaml:"move_speed" json:"move_speed"`
	TurnSpeed  float64 `yaml:"turn_speed" json:"turn_speed"`
	MaxLinear  float64 `yaml:"max_linear" json:"max_linear"`
	MaxAngular float64 `yaml:"max_angular" json:"max_angular"`
}

// ActuatorConfig holds the secondary actuator range and step.
type ActuatorConfig struct {
	MinPosition     float64 `yaml:"min_position" json:"min_position"`
	MaxPosition     float64 `yaml:"max_position" json:"max_position"`
	Step            float64 `yaml:"step" json:"step"`
	InitialPosition float64 `yaml:"initial_position" json:"initial_position"`
}

// JoystickConfig is the geometry of the virtual joystick surface in pixels.
type JoystickConfig struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
	Margin float64 `yaml:"margin" json:"margin"`
}

// CameraConfig names a compressed image topic the console renders.
type CameraConfig struct {
	Name  string `yaml:"name" json:"name"`
	Topic string `yaml:"topic" json:"topic"`
	Title string `yaml:"title" json:"title"`
}

// RelayConfig enables the optional command mirrors. Empty addresses disable them.
type RelayConfig struct {
	ZeroMQAddress string `yaml:"zeromq_address" json:"zeromq_address"`
	MQTTBroker    string `yaml:"mqtt_broker" json:"mqtt_broker"`
	MQTTClientID  string `yaml:"mqtt_client_id" json:"mqtt_client_id"`
	MQTTUsername  string `yaml:"mqtt_username" json:"mqtt_username"`
	MQTTPassword  string `yaml:"mqtt_password" json:"-"`
	TopicPrefix   string `yaml:"topic_prefix" json:"topic_prefix"`
}

// LoadConfig loads the configuration file at path, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file '%s': %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}

	b := &c.Bridge
	if b.URL == "" {
		b.URL = DefaultBridgeURL
	}
	if b.VelocityTopic == "" {
		b.VelocityTopic = DefaultVelocityTopic
	}
	if b.ActuatorTopic == "" {
		b.ActuatorTopic = DefaultActuatorTopic
	}
	if b.FrameID == "" {
		b.FrameID = DefaultFrameID
	}
	if b.ImageThrottleMs == 0 {
		b.ImageThrottleMs = DefaultImageThrottleMs
	}
	if b.HandshakeTimeoutMs == 0 {
		b.HandshakeTimeoutMs = DefaultHandshakeMs
	}
	if b.SendQueueSize == 0 {
		b.SendQueueSize = DefaultSendQueueSize
	}

	d := &c.Drive
	if d.MoveSpeed == 0 {
		d.MoveSpeed = DefaultMoveSpeed
	}
	if d.TurnSpeed == 0 {
		d.TurnSpeed = DefaultTurnSpeed
	}
	if d.MaxLinear == 0 {
		d.MaxLinear = DefaultMaxLinear
	}
	if d.MaxAngular == 0 {
		d.MaxAngular = DefaultMaxAngular
	}

	// A zero range means the section was omitted; 0 is a valid bound on its own.
	a := &c.Actuator
	if a.MinPosition == 0 && a.MaxPosition == 0 {
		a.MaxPosition = DefaultActuatorMax
	}
	if a.Step == 0 {
		a.Step = DefaultActuatorStep
	}

	j := &c.Joystick
	if j.Width == 0 {
		j.Width = DefaultJoystickSize
	}
	if j.Height == 0 {
		j.Height = DefaultJoystickSize
	}
	if j.Margin == 0 {
		j.Margin = DefaultJoystickMargin
	}

	if c.Relay.TopicPrefix == "" {
		c.Relay.TopicPrefix = DefaultRelayTopicPrefix
	}

	for i := range c.Cameras {
		if c.Cameras[i].Title == "" {
			c.Cameras[i].Title = c.Cameras[i].Name
		}
	}
}

// Validate checks the semantic constraints between fields.
func (c *Config) Validate() error {
	if c.Bridge.URL == "" {
		return missing("bridge.url")
	}
	if c.Bridge.VelocityTopic == "" {
		return missing("bridge.velocity_topic")
	}
	if c.Bridge.ActuatorTopic == "" {
		return missing("bridge.actuator_topic")
	}
	if c.Bridge.ImageThrottleMs < ImageThrottleOff {
		return invalid("bridge.image_throttle_ms", c.Bridge.ImageThrottleMs)
	}
	if c.Bridge.HandshakeTimeoutMs < 0 {
		return invalid("bridge.handshake_timeout_ms", c.Bridge.HandshakeTimeoutMs)
	}
	if c.Bridge.SendQueueSize < 1 {
		return invalid("bridge.send_queue_size", c.Bridge.SendQueueSize)
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return invalid("server.http_port", c.Server.HTTPPort)
	}
	if c.Drive.MoveSpeed < 0 || c.Drive.TurnSpeed < 0 || c.Drive.MaxLinear < 0 || c.Drive.MaxAngular < 0 {
		return invalid("drive", "negative speed")
	}

	a := c.Actuator
	if a.MinPosition >= a.MaxPosition {
		return invalid("actuator.min_position", a.MinPosition)
	}
	if a.Step <= 0 {
		return invalid("actuator.step", a.Step)
	}
	if a.InitialPosition < a.MinPosition || a.InitialPosition > a.MaxPosition {
		return invalid("actuator.initial_position", a.InitialPosition)
	}

	j := c.Joystick
	if j.Width <= 0 || j.Height <= 0 {
		return invalid("joystick", "non-positive size")
	}
	if j.Margin < 0 || j.Margin*2 >= j.Width || j.Margin*2 >= j.Height {
		return invalid("joystick.margin", j.Margin)
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.Name == "" {
			return missing(fmt.Sprintf("cameras[%d].name", i))
		}
		if cam.Topic == "" {
			return missing(fmt.Sprintf("cameras[%d].topic", i))
		}
		if seen[cam.Name] {
			return invalid(fmt.Sprintf("cameras[%d].name", i), cam.Name)
		}
		seen[cam.Name] = true
	}

	return nil
}

// GetCamera returns the camera with the given name
func (c *Config) GetCamera(name string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

func missing(field string) error {
	return fmt.Errorf("missing required field in console config: %s", field)
}

func invalid(field string, value interface{}) error {
	return fmt.Errorf("invalid value in console config: %s (%v)", field, value)
}
