package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/devicefactory"
	"github.com/underwhelmingperformance/idm-sub000/pkg/config"
)

// rootOptions holds the persistent flags shared by every device command.
type rootOptions struct {
	address    string
	name       string
	fixture    string
	configPath string
	logLevel   string
	verbose    bool
	timeout    time.Duration
}

func (o *rootOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.address, "address", "", "Device address (MAC on Linux, UUID on macOS)")
	flags.StringVar(&o.name, "name", "", "Connect to the first device whose advertised name starts with this prefix")
	flags.StringVar(&o.fixture, "fixture", "", "Use an emulated display described by this YAML fixture")
	flags.StringVar(&o.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")
	flags.DurationVar(&o.timeout, "timeout", 0, "Connection timeout (default from config)")
}

// commandEnv is everything a device command needs once flags are parsed.
type commandEnv struct {
	cfg     *config.Config
	logger  *logrus.Logger
	target  devicefactory.Target
	profile device.DeviceProfile
}

// prepare loads configuration and applies flag overrides.
func (o *rootOptions) prepare(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, "verbose", cfgLogLevel(o, cfg))
	if err != nil {
		return nil, err
	}

	profile, err := cfg.DeviceProfile()
	if err != nil {
		return nil, err
	}

	target := devicefactory.Target{
		Address:        firstNonEmpty(o.address, cfg.Device.Address),
		NamePrefix:     firstNonEmpty(o.name, cfg.Device.Name),
		Fixture:        o.fixture,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if o.timeout > 0 {
		target.ConnectTimeout = o.timeout
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	return &commandEnv{cfg: cfg, logger: logger, target: target, profile: profile}, nil
}

// cfgLogLevel only honours the config file level when one was given explicitly.
func cfgLogLevel(o *rootOptions, cfg *config.Config) string {
	if o.configPath == "" {
		return ""
	}
	return cfg.LogLevel
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// withSession connects, runs fn and disconnects. Ctrl+C cancels the context.
func (o *rootOptions) withSession(cmd *cobra.Command, env *commandEnv, fn func(ctx context.Context, s *device.Session) error) error {
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return devicefactory.WithSession(ctx, env.target, env.profile, env.logger, func(s *device.Session) error {
		return fn(ctx, s)
	})
}
