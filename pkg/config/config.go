package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
	"github.com/underwhelmingperformance/idm-sub000/internal/upload"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s"`
	AckTimeout     time.Duration `yaml:"ack_timeout" default:"5s"`
	// FragmentDelay spaces text fragments; bulk transfers are not delayed.
	FragmentDelay time.Duration `yaml:"fragment_delay" default:"20ms"`

	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig selects the display and describes its model.
type DeviceConfig struct {
	Address           string `yaml:"address"`
	Name              string `yaml:"name"`
	PanelWidth        int    `yaml:"panel_width" default:"32"`
	PanelHeight       int    `yaml:"panel_height" default:"32"`
	FallbackChunkSize int    `yaml:"fallback_chunk_size" default:"18"`
	GifHeader         string `yaml:"gif_header" default:"timed"`
	ImageMode         string `yaml:"image_mode" default:"file"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	defaults.SetDefaults(&cfg.Device)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed by YAML types alone.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.AckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ack_timeout must be positive, got %s", c.AckTimeout))
	}
	if c.FragmentDelay < 0 {
		errs = append(errs, fmt.Errorf("fragment_delay must not be negative, got %s", c.FragmentDelay))
	}
	if (c.Device.PanelWidth == 0) != (c.Device.PanelHeight == 0) || c.Device.PanelWidth < 0 || c.Device.PanelHeight < 0 {
		errs = append(errs, fmt.Errorf("panel size %dx%d: set both dimensions or neither", c.Device.PanelWidth, c.Device.PanelHeight))
	}
	if c.Device.FallbackChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("fallback_chunk_size must be positive, got %d", c.Device.FallbackChunkSize))
	}
	if _, err := protocol.ParseGifHeaderProfile(c.Device.GifHeader); err != nil {
		errs = append(errs, err)
	}
	if _, err := device.ParseImageUploadMode(c.Device.ImageMode); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeviceProfile converts the device section. Call Validate first.
func (c *Config) DeviceProfile() (device.DeviceProfile, error) {
	gif, err := protocol.ParseGifHeaderProfile(c.Device.GifHeader)
	if err != nil {
		return device.DeviceProfile{}, err
	}
	mode, err := device.ParseImageUploadMode(c.Device.ImageMode)
	if err != nil {
		return device.DeviceProfile{}, err
	}
	return device.DeviceProfile{
		PanelWidth:        c.Device.PanelWidth,
		PanelHeight:       c.Device.PanelHeight,
		FallbackChunkSize: c.Device.FallbackChunkSize,
		GifHeader:         gif,
		ImageMode:         mode,
	}, nil
}

// TextPacing is the pacing for text uploads.
func (c *Config) TextPacing() upload.Pacing {
	return upload.Pacing{FragmentDelay: c.FragmentDelay, AckTimeout: c.AckTimeout}
}

// BulkPacing is the pacing for GIF and image uploads.
func (c *Config) BulkPacing() upload.Pacing {
	return upload.Pacing{AckTimeout: c.AckTimeout}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
