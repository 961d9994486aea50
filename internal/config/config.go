package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete photobooth configuration
type Config struct {
	BoothID          string          `yaml:"booth_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig    `yaml:"camera"`
	Capture          CaptureConfig   `yaml:"capture"`
	Gallery          GalleryConfig   `yaml:"gallery"`
	Composite        CompositeConfig `yaml:"composite"`
	Download         DownloadConfig  `yaml:"download"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
	Log              LogConfig       `yaml:"log"`
}

// CameraConfig selects and tunes the frame source
type CameraConfig struct {
	Source          string `yaml:"source"`       // synthetic, v4l2
	Facing          string `yaml:"facing"`       // front (user), back (environment)
	FrontDevice     string `yaml:"front_device"` // e.g. /dev/video0
	BackDevice      string `yaml:"back_device"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	WarmupFrames    int    `yaml:"warmup_frames"`
	SampleTimeoutMS int    `yaml:"sample_timeout_ms"`
	MaxRetries      int    `yaml:"max_retries"`
}

// CaptureConfig holds session defaults and delays
type CaptureConfig struct {
	Shots        int     `yaml:"shots"` // 1..10
	Flash        bool    `yaml:"flash"`
	Zoom         float64 `yaml:"zoom"` // 1..5
	TickMS       int     `yaml:"tick_ms"`
	InterShotMS  int     `yaml:"inter_shot_ms"`
	FlashPulseMS int     `yaml:"flash_pulse_ms"`
}

// GalleryConfig selects the storage backend
type GalleryConfig struct {
	Backend    string `yaml:"backend"` // memory, file, sqlite
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"` // sqlite only
}

// CompositeConfig contains selection capacity and strip rendering settings
type CompositeConfig struct {
	Capacity      int `yaml:"capacity"`
	FrameWidth    int `yaml:"frame_width"`
	Border        int `yaml:"border"`
	CaptionHeight int `yaml:"caption_height"`
	CacheTTLS     int `yaml:"cache_ttl_s"`
}

// DownloadConfig contains export settings
type DownloadConfig struct {
	Dir string `yaml:"dir"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Broker        string  `yaml:"broker"`
	ClientID      string  `yaml:"client_id"`
	TopicPrefix   string  `yaml:"topic_prefix"`
	QoS           byte    `yaml:"qos"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration that runs without any hardware or broker.
func Default() *Config {
	cfg := &Config{BoothID: "booth-1"}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: default configuration invalid: %v", err))
	}
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Tick returns the countdown tick.
func (c CaptureConfig) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// InterShot returns the pause between shots.
func (c CaptureConfig) InterShot() time.Duration {
	return time.Duration(c.InterShotMS) * time.Millisecond
}

// FlashPulse returns the reported flash duration.
func (c CaptureConfig) FlashPulse() time.Duration {
	return time.Duration(c.FlashPulseMS) * time.Millisecond
}

// SampleTimeout returns how long to wait for a camera frame.
func (c CameraConfig) SampleTimeout() time.Duration {
	return time.Duration(c.SampleTimeoutMS) * time.Millisecond
}

// CacheTTL returns how long decoded frames stay cached.
func (c CompositeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLS) * time.Second
}
