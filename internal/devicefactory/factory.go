package devicefactory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/device/fake"
	goble "github.com/underwhelmingperformance/idm-sub000/internal/device/go-ble"
)

// ErrNoTarget is returned when neither an address, a name prefix nor a fixture is given.
var ErrNoTarget = errors.New("no device selected: use --address, --name or --fixture")

// Target selects the transport backend. A fixture path selects the fake transport;
// otherwise go-ble connects by address or by advertised name prefix.
type Target struct {
	Address        string
	NamePrefix     string
	Fixture        string
	ConnectTimeout time.Duration
}

// Validate reports whether the target names a device.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Address) == "" && strings.TrimSpace(t.NamePrefix) == "" && strings.TrimSpace(t.Fixture) == "" {
		return ErrNoTarget
	}
	return nil
}

// BLEConnector dials a real peripheral. This is a variable so that it can be overridden in tests.
var BLEConnector = func(ctx context.Context, opts goble.ConnectOptions, logger *logrus.Logger) (device.ConnectedSession, error) {
	return goble.Connect(ctx, opts, logger)
}

// Connect establishes the transport selected by target.
func Connect(ctx context.Context, target Target, logger *logrus.Logger) (device.ConnectedSession, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if target.Fixture != "" {
		fixture, err := fake.LoadFixture(target.Fixture)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"fixture": target.Fixture,
			"name":    fixture.Name,
		}).Info("Using fixture transport")
		return fake.New(fixture, fake.WithLogger(logger)), nil
	}

	return BLEConnector(ctx, goble.ConnectOptions{
		Address:    target.Address,
		NamePrefix: target.NamePrefix,
		Timeout:    target.ConnectTimeout,
	}, logger)
}

// OpenSession connects and negotiates a device session.
func OpenSession(ctx context.Context, target Target, profile device.DeviceProfile, logger *logrus.Logger) (*device.Session, error) {
	conn, err := Connect(ctx, target, logger)
	if err != nil {
		return nil, err
	}
	return device.Open(ctx, conn, profile, logger)
}

// WithSession runs fn on a fresh session and closes it afterwards. A close failure is
// returned only when fn succeeded.
func WithSession(ctx context.Context, target Target, profile device.DeviceProfile, logger *logrus.Logger, fn func(*device.Session) error) error {
	if logger == nil {
		logger = logrus.New()
	}
	session, err := OpenSession(ctx, target, profile, logger)
	if err != nil {
		return err
	}

	runErr := fn(session)

	closeErr := session.Close(context.WithoutCancel(ctx))
	switch {
	case runErr != nil:
		if closeErr != nil {
			logger.WithError(closeErr).Warn("Session close failed after error")
		}
		return runErr
	case closeErr != nil:
		return fmt.Errorf("close session: %w", closeErr)
	}
	return nil
}
