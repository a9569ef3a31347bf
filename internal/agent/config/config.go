// Package config loads the reader agent's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv names the environment variable holding the device API key. The
// key is never read from the YAML file.
const APIKeyEnv = "DEVICE_API_KEY"

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

type Config struct {
	API       APIConfig       `yaml:"api"`
	Device    DeviceConfig    `yaml:"device"`
	Reader    ReaderConfig    `yaml:"reader"`
	Offline   OfflineConfig   `yaml:"offline"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	GRPCAddr       string `yaml:"grpc_addr"`
	Transport      string `yaml:"transport"` // "http" | "grpc"
	Encoding       string `yaml:"encoding"`  // "json" | "cbor", http only
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DeviceConfig struct {
	DeviceID string `yaml:"device_id"`
	APIKey   string `yaml:"-"`
}

type ReaderConfig struct {
	// Source is a file or device path the reader emits one tag id per line
	// on. Empty or "-" reads stdin.
	Source                string `yaml:"source"`
	PollIntervalMS        int    `yaml:"poll_interval_ms"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
}

type OfflineConfig struct {
	DatabasePath        string `yaml:"database_path"`
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds"`
	BatchSize           int    `yaml:"batch_size"`
	MaxBackoffSeconds   int    `yaml:"max_backoff_seconds"`
	RetentionDays       int    `yaml:"retention_days"` // 0 keeps acknowledged records forever
}

type HeartbeatConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"` // 0 disables
}

type FeedbackConfig struct {
	AntiPassbackSeconds int `yaml:"anti_passback_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			Transport:      TransportHTTP,
			Encoding:       EncodingJSON,
			TimeoutSeconds: 10,
		},
		Reader: ReaderConfig{
			PollIntervalMS:        200,
			ReconnectDelaySeconds: 1,
		},
		Offline: OfflineConfig{
			DatabasePath:        "./data/agent.db",
			SyncIntervalSeconds: 5,
			BatchSize:           50,
			MaxBackoffSeconds:   300,
			RetentionDays:       30,
		},
		Heartbeat: HeartbeatConfig{IntervalSeconds: 60},
		Feedback:  FeedbackConfig{AntiPassbackSeconds: 60},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, rejecting unknown fields, then takes
// the API key from the environment and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	cfg.Device.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.API.Transport = strings.ToLower(strings.TrimSpace(cfg.API.Transport))
	cfg.API.Encoding = strings.ToLower(strings.TrimSpace(cfg.API.Encoding))
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Device.DeviceID) == "" {
		errs = append(errs, errors.New("device.device_id is required"))
	}
	if c.Device.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s environment variable is not set", APIKeyEnv))
	}

	switch c.API.Transport {
	case TransportHTTP:
		if c.API.BaseURL == "" {
			errs = append(errs, errors.New("api.base_url is required for the http transport"))
		}
		if c.API.Encoding != EncodingJSON && c.API.Encoding != EncodingCBOR {
			errs = append(errs, fmt.Errorf("api.encoding %q must be json or cbor", c.API.Encoding))
		}
	case TransportGRPC:
		if c.API.GRPCAddr == "" {
			errs = append(errs, errors.New("api.grpc_addr is required for the grpc transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("api.transport %q must be http or grpc", c.API.Transport))
	}

	if c.Offline.DatabasePath == "" {
		errs = append(errs, errors.New("offline.database_path is required"))
	}
	if c.Reader.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("reader.poll_interval_ms must be positive"))
	}
	if c.Offline.SyncIntervalSeconds <= 0 || c.Offline.BatchSize <= 0 || c.Offline.MaxBackoffSeconds <= 0 {
		errs = append(errs, errors.New("offline intervals and batch_size must be positive"))
	}
	if c.API.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("api.timeout_seconds must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) PollInterval() time.Duration { return ms(c.Reader.PollIntervalMS) }
func (c Config) ReconnectDelay() time.Duration {
	return seconds(c.Reader.ReconnectDelaySeconds)
}
func (c Config) SyncInterval() time.Duration      { return seconds(c.Offline.SyncIntervalSeconds) }
func (c Config) MaxBackoff() time.Duration        { return seconds(c.Offline.MaxBackoffSeconds) }
func (c Config) RequestTimeout() time.Duration    { return seconds(c.API.TimeoutSeconds) }
func (c Config) HeartbeatInterval() time.Duration { return seconds(c.Heartbeat.IntervalSeconds) }
func (c Config) AntiPassback() time.Duration      { return seconds(c.Feedback.AntiPassbackSeconds) }
func (c Config) Retention() time.Duration {
	return time.Duration(c.Offline.RetentionDays) * 24 * time.Hour
}

func ms(n int) time.Duration      { return time.Duration(n) * time.Millisecond }
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
