package config

import (
	"fmt"
	"regexp"
	"strings"
)

var boothIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	if cfg.BoothID == "" {
		return fmt.Errorf("booth_id is required")
	}
	if !boothIDPattern.MatchString(cfg.BoothID) {
		return fmt.Errorf("booth_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := validateCapture(&cfg.Capture); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := validateGallery(&cfg.Gallery); err != nil {
		return fmt.Errorf("gallery: %w", err)
	}
	if err := validateComposite(&cfg.Composite); err != nil {
		return fmt.Errorf("composite: %w", err)
	}

	if cfg.Download.Dir == "" {
		cfg.Download.Dir = "."
	}

	if err := validateMQTT(&cfg.MQTT, cfg.BoothID); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
		cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	return nil
}

func validateCamera(c *CameraConfig) error {
	switch c.Source {
	case "":
		c.Source = "synthetic"
	case "synthetic":
	case "v4l2":
		if c.FrontDevice == "" && c.BackDevice == "" {
			return fmt.Errorf("v4l2 source needs front_device or back_device")
		}
	default:
		return fmt.Errorf("unknown source %q (must be synthetic or v4l2)", c.Source)
	}

	switch c.Facing {
	case "":
		c.Facing = "front"
	case "front", "user", "back", "environment":
	default:
		return fmt.Errorf("unknown facing %q", c.Facing)
	}

	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height must be >= 0")
	}
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	if c.WarmupFrames <= 0 {
		c.WarmupFrames = 5
	}
	if c.SampleTimeoutMS <= 0 {
		c.SampleTimeoutMS = 3000
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	return nil
}

func validateCapture(c *CaptureConfig) error {
	if c.Shots == 0 {
		c.Shots = 1
	}
	if c.Shots < 1 || c.Shots > 10 {
		return fmt.Errorf("shots must be 1..10, got %d", c.Shots)
	}

	if c.Zoom == 0 {
		c.Zoom = 1
	}
	if c.Zoom < 1 || c.Zoom > 5 {
		return fmt.Errorf("zoom must be 1..5, got %.2f", c.Zoom)
	}

	if c.TickMS <= 0 {
		c.TickMS = 1000
	}
	if c.InterShotMS <= 0 {
		c.InterShotMS = 1000
	}
	if c.FlashPulseMS <= 0 {
		c.FlashPulseMS = 500
	}
	return nil
}

func validateGallery(g *GalleryConfig) error {
	switch g.Backend {
	case "":
		g.Backend = "memory"
	case "memory":
	case "file":
		if g.Path == "" {
			g.Path = "gallery.json"
		}
	case "sqlite":
		if g.Path == "" {
			g.Path = "gallery.db"
		}
	default:
		return fmt.Errorf("unknown backend %q (must be memory, file or sqlite)", g.Backend)
	}

	if g.Collection == "" {
		g.Collection = "capturedImages"
	}
	return nil
}

func validateComposite(c *CompositeConfig) error {
	if c.Capacity == 0 {
		c.Capacity = 3
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", c.Capacity)
	}
	if c.FrameWidth <= 0 {
		c.FrameWidth = 320
	}
	if c.Border < 0 {
		return fmt.Errorf("border must be >= 0")
	}
	if c.Border == 0 {
		c.Border = 16
	}
	if c.CaptionHeight <= 0 {
		c.CaptionHeight = 56
	}
	if c.CacheTTLS <= 0 {
		c.CacheTTLS = 600
	}
	return nil
}

func validateMQTT(m *MQTTConfig, boothID string) error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("broker is required when enabled")
	}
	if m.ClientID == "" {
		m.ClientID = "photobooth-" + boothID
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = fmt.Sprintf("photobooth/%s/events", boothID)
	}
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.RatePerSecond <= 0 {
		m.RatePerSecond = 10
	}
	if m.Burst <= 0 {
		m.Burst = 5
	}
	return nil
}
