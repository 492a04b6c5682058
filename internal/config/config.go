// Package config loads and validates the collector's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Log        LogConfig       `yaml:"log"`
	Batch      BatchConfig     `yaml:"batch"`
	Devices    []DeviceConfig  `yaml:"devices"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Transports TransportConfig `yaml:"transports"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // console or json
}

// BatchConfig controls the periodic batch processor cadences.
type BatchConfig struct {
	Interval        time.Duration `yaml:"interval"`
	BatteryInterval time.Duration `yaml:"battery_interval"`
}

// DeviceConfig describes one device to collect from.
type DeviceConfig struct {
	ID         string  `yaml:"id"`
	Optical    bool    `yaml:"optical"`
	SampleRate float64 `yaml:"sample_rate"`
	BPMWindow  int     `yaml:"bpm_window"`
	RRWindow   int     `yaml:"rr_window"`
	Seed       int64   `yaml:"seed"`
}

// IngestConfig controls the HTTP frame ingest endpoint.
type IngestConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Token      string `yaml:"token"`
	AcceptGzip bool   `yaml:"accept_gzip"`
}

// TransportConfig holds the delivery surfaces.
type TransportConfig struct {
	BufferSize int             `yaml:"buffer_size"`
	WebSocket  EndpointConfig  `yaml:"websocket"`
	SSE        EndpointConfig  `yaml:"sse"`
	UDP        EndpointConfig  `yaml:"udp"`
	NATS       NATSConfig      `yaml:"nats"`
}

// EndpointConfig is one host/port delivery endpoint.
type EndpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Format  string `yaml:"format"` // json or protobuf
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Format        string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Batch: BatchConfig{
			Interval:        time.Second,
			BatteryInterval: 30 * time.Second,
		},
		Transports: TransportConfig{
			BufferSize: 100,
			WebSocket:  EndpointConfig{Enabled: true, Host: "127.0.0.1", Port: 8765, Format: "json"},
			SSE:        EndpointConfig{Host: "127.0.0.1", Port: 8766, Format: "json"},
			UDP:        EndpointConfig{Host: "127.0.0.1", Port: 8767, Format: "json"},
			NATS:       NATSConfig{URL: "nats://127.0.0.1:4222", SubjectPrefix: "synheart.metrics", Format: "json"},
		},
		Ingest: IngestConfig{
			Host:       "127.0.0.1",
			Port:       8787,
			AcceptGzip: true,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log encoding %q", c.Log.Encoding)
	}

	if c.Batch.Interval <= 0 {
		return fmt.Errorf("batch interval must be positive, got %s", c.Batch.Interval)
	}
	if c.Batch.BatteryInterval <= 0 {
		return fmt.Errorf("battery interval must be positive, got %s", c.Batch.BatteryInterval)
	}

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %d: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
		if d.Optical && d.SampleRate < 0 {
			return fmt.Errorf("device %s: sample rate must not be negative", d.ID)
		}
		if d.BPMWindow < 0 || d.RRWindow < 0 {
			return fmt.Errorf("device %s: window sizes must not be negative", d.ID)
		}
	}

	for name, ep := range map[string]EndpointConfig{
		"websocket": c.Transports.WebSocket,
		"sse":       c.Transports.SSE,
		"udp":       c.Transports.UDP,
	} {
		if !ep.Enabled {
			continue
		}
		if ep.Port <= 0 || ep.Port > 65535 {
			return fmt.Errorf("%s transport: invalid port %d", name, ep.Port)
		}
		if err := validFormat(ep.Format); err != nil {
			return fmt.Errorf("%s transport: %w", name, err)
		}
	}

	if c.Transports.NATS.Enabled {
		if c.Transports.NATS.URL == "" {
			return fmt.Errorf("nats transport: url is required")
		}
		if err := validFormat(c.Transports.NATS.Format); err != nil {
			return fmt.Errorf("nats transport: %w", err)
		}
	}

	if c.Ingest.Enabled {
		if c.Ingest.Port <= 0 || c.Ingest.Port > 65535 {
			return fmt.Errorf("ingest: invalid port %d", c.Ingest.Port)
		}
	}

	if c.Transports.BufferSize <= 0 {
		return fmt.Errorf("transport buffer size must be positive, got %d", c.Transports.BufferSize)
	}

	return nil
}

func validFormat(format string) error {
	switch format {
	case "", "json", "protobuf":
		return nil
	default:
		return fmt.Errorf("invalid format %q (want json or protobuf)", format)
	}
}
