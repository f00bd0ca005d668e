package devicefactory

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/device/fake"
	goble "github.com/underwhelmingperformance/idm-sub000/internal/device/go-ble"
	"github.com/underwhelmingperformance/idm-sub000/internal/testutils"
)

func stubConnector(t *testing.T, conn device.ConnectedSession, err error) *goble.ConnectOptions {
	t.Helper()
	var seen goble.ConnectOptions
	original := BLEConnector
	BLEConnector = func(_ context.Context, opts goble.ConnectOptions, _ *logrus.Logger) (device.ConnectedSession, error) {
		seen = opts
		return conn, err
	}
	t.Cleanup(func() { BLEConnector = original })
	return &seen
}

func TestConnectRequiresTarget(t *testing.T) {
	_, err := Connect(context.Background(), Target{}, nil)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestConnectFixture(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	seen := stubConnector(t, nil, errors.New("BLE MUST not be used"))
	path, err := testutils.ProjectPath("internal/device/fake/testdata/fafa02.yaml")
	require.NoError(t, err)

	conn, err := Connect(context.Background(), Target{Address: "ignored", Fixture: path}, helper.Logger)
	require.NoError(t, err)

	peripheral, ok := conn.(*fake.Peripheral)
	require.True(t, ok, "fixture target MUST use the fake transport")
	assert.Equal(t, "IDM-Test", peripheral.Fixture().Name)
	assert.Empty(t, seen.Address)
}

func TestConnectBLE(t *testing.T) {
	peripheral := fake.New(fake.FaFa02Fixture())
	seen := stubConnector(t, peripheral, nil)

	conn, err := Connect(context.Background(), Target{NamePrefix: "IDM-"}, nil)
	require.NoError(t, err)
	assert.Same(t, peripheral, conn)
	assert.Equal(t, "IDM-", seen.NamePrefix)
}

func TestWithSession(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	profile := testutils.DefaultProfile()

	t.Run("closes after success", func(t *testing.T) {
		peripheral := fake.New(fake.FaFa02Fixture())
		stubConnector(t, peripheral, nil)

		var gotProfile device.GattProfile
		err := WithSession(context.Background(), Target{Address: "aa"}, profile, helper.Logger, func(s *device.Session) error {
			gotProfile = s.GattProfile()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, device.ProfileFaFa02, gotProfile)
		assert.False(t, peripheral.Connected(), "session MUST be closed")
	})

	t.Run("callback error wins over close error", func(t *testing.T) {
		boom := errors.New("upload failed")
		stubConnector(t, fake.New(fake.FaFa02Fixture(), fake.WithDisconnectError(errors.New("stuck"))), nil)

		err := WithSession(context.Background(), Target{Address: "aa"}, profile, helper.Logger, func(*device.Session) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NotEmpty(t, helper.EntriesAt(logrus.WarnLevel))
	})

	t.Run("close error surfaced on success", func(t *testing.T) {
		stubConnector(t, fake.New(fake.FaFa02Fixture(), fake.WithDisconnectError(errors.New("stuck"))), nil)

		err := WithSession(context.Background(), Target{Address: "aa"}, profile, helper.Logger, func(*device.Session) error {
			return nil
		})
		var closeErr *device.SessionCloseError
		assert.ErrorAs(t, err, &closeErr)
	})

	t.Run("negotiation failure", func(t *testing.T) {
		fixture := fake.FaFa02Fixture()
		fixture.Services = nil
		stubConnector(t, fake.New(fixture), nil)

		called := false
		err := WithSession(context.Background(), Target{Address: "aa"}, profile, helper.Logger, func(*device.Session) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, device.ErrMissingRequiredEndpoints)
		assert.False(t, called)
	})
}
