package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// ConfigFileName is the file LoadBootstrapConfig reads from the config directory.
const ConfigFileName = "console_config.yaml"

// EnvFileName is an optional dotenv file next to the YAML config.
const EnvFileName = ".env"

// EnvOverrides are environment variables that take precedence over the YAML file.
// Unset variables leave the file value untouched.
type EnvOverrides struct {
	LogLevel      string `env:"CONSOLE_LOG_LEVEL"`
	LogPath       string `env:"CONSOLE_LOG_PATH"`
	HTTPPort      int    `env:"CONSOLE_HTTP_PORT"`
	BridgeURL     string `env:"CONSOLE_BRIDGE_URL"`
	VelocityTopic string `env:"CONSOLE_VELOCITY_TOPIC"`
	ActuatorTopic string `env:"CONSOLE_ACTUATOR_TOPIC"`
	FrameID       string `env:"CONSOLE_FRAME_ID"`
	ZeroMQAddress string `env:"CONSOLE_RELAY_ZEROMQ_ADDRESS"`
	MQTTBroker    string `env:"CONSOLE_RELAY_MQTT_BROKER"`
	MQTTUsername  string `env:"CONSOLE_RELAY_MQTT_USERNAME"`
	MQTTPassword  string `env:"CONSOLE_RELAY_MQTT_PASSWORD"`
}

// LoadBootstrapConfig loads console_config.yaml from configDir, then applies
// configDir/.env (if present) and process environment overrides.
func LoadBootstrapConfig(configDir string) (*Config, error) {
	path := filepath.Join(configDir, ConfigFileName)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	envPath := filepath.Join(configDir, EnvFileName)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file '%s': %w", envPath, err)
	}

	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("error parsing environment overrides: %w", err)
	}
	overrides.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply copies every set override into cfg.
func (o EnvOverrides) Apply(cfg *Config) {
	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Logging.LogPath, o.LogPath)
	if o.HTTPPort != 0 {
		cfg.Server.HTTPPort = o.HTTPPort
	}
	setString(&cfg.Bridge.URL, o.BridgeURL)
	setString(&cfg.Bridge.VelocityTopic, o.VelocityTopic)
	setString(&cfg.Bridge.ActuatorTopic, o.ActuatorTopic)
	setString(&cfg.Bridge.FrameID, o.FrameID)
	setString(&cfg.Relay.ZeroMQAddress, o.ZeroMQAddress)
	setString(&cfg.Relay.MQTTBroker, o.MQTTBroker)
	setString(&cfg.Relay.MQTTUsername, o.MQTTUsername)
	setString(&cfg.Relay.MQTTPassword, o.MQTTPassword)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
