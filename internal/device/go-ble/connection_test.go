package goble

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

type testProfile struct {
	profile  *ble.Profile
	write    *ble.Characteristic
	notify   *ble.Characteristic
	indicate *ble.Characteristic
	vendor   *ble.Characteristic
}

func newTestProfile() testProfile {
	tp := testProfile{
		write:    &ble.Characteristic{UUID: ble.UUID16(0xfa02), Property: ble.CharWrite | ble.CharWriteNR},
		notify:   &ble.Characteristic{UUID: ble.UUID16(0xfa03), Property: ble.CharNotify | ble.CharRead},
		indicate: &ble.Characteristic{UUID: ble.UUID16(0xfa04), Property: ble.CharIndicate},
		vendor:   &ble.Characteristic{UUID: ble.MustParse("d44bc439-abfd-45a2-b575-925416129600"), Property: ble.CharWrite},
	}
	tp.profile = &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0xfee9), Characteristics: []*ble.Characteristic{tp.vendor}},
		{UUID: ble.UUID16(0x00fa), Characteristics: []*ble.Characteristic{tp.write, tp.notify, tp.indicate}},
	}}
	return tp
}

func newTestConnection(t *testing.T, mtu int) (*Connection, *mockClient, testProfile, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	tp := newTestProfile()
	client := &mockClient{}
	client.On("DiscoverProfile", true).Return(tp.profile, nil)
	client.On("CancelConnection").Return(nil).Maybe()

	c, err := newConnection(client, mtu, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c, client, tp, hook
}

func TestConnectionServices(t *testing.T) {
	c, _, _, _ := newTestConnection(t, 247)

	services := c.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "000000fa-0000-1000-8000-00805f9b34fb", services[0].UUID, "services MUST be sorted by canonical UUID")
	assert.Equal(t, "0000fee9-0000-1000-8000-00805f9b34fb", services[1].UUID)

	chars := services[0].Characteristics
	require.Len(t, chars, 3)
	assert.Equal(t, "0000fa02-0000-1000-8000-00805f9b34fb", chars[0].UUID)
	assert.Equal(t, device.PropWrite|device.PropWriteWithoutResponse, chars[0].Properties)
	assert.Equal(t, device.PropNotify|device.PropRead, chars[1].Properties)
	assert.Equal(t, "d44bc439-abfd-45a2-b575-925416129600", services[1].Characteristics[0].UUID)

	assert.Equal(t, 244, c.MaxWriteWithoutResponse())
}

func TestConnectionNegotiatesAgainstDiscoveredProfile(t *testing.T) {
	c, _, _, _ := newTestConnection(t, 247)

	n, err := device.Negotiate(c.Services())
	require.NoError(t, err)
	assert.Equal(t, device.ProfileFaFa02, n.Profile)
}

func TestConnectionMaxWriteFloor(t *testing.T) {
	c, _, _, _ := newTestConnection(t, 0)
	assert.Equal(t, 20, c.MaxWriteWithoutResponse(), "unknown MTU MUST fall back to the default ATT payload")
}

func TestConnectionWrite(t *testing.T) {
	c, client, tp, _ := newTestConnection(t, 247)
	ctx := context.Background()

	client.On("WriteCharacteristic", tp.write, []byte{0x01}, true).Return(nil).Once()
	client.On("WriteCharacteristic", tp.write, []byte{0x02}, false).Return(nil).Once()

	require.NoError(t, c.Write(ctx, "fa02", []byte{0x01}, false))
	require.NoError(t, c.Write(ctx, "0000fa02-0000-1000-8000-00805f9b34fb", []byte{0x02}, true))
	client.AssertExpectations(t)

	t.Run("unknown characteristic", func(t *testing.T) {
		err := c.Write(ctx, "beef", []byte{0x01}, false)
		var nf *device.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("transport error is normalised", func(t *testing.T) {
		client.On("WriteCharacteristic", tp.write, []byte{0x03}, true).Return(errors.New("device not connected")).Once()
		err := c.Write(ctx, "fa02", []byte{0x03}, false)
		assert.ErrorIs(t, err, device.ErrNotConnected)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, c.Write(cctx, "fa02", []byte{0x04}, false), context.Canceled)
	})
}

func TestConnectionRead(t *testing.T) {
	c, client, tp, _ := newTestConnection(t, 247)
	client.On("ReadCharacteristic", tp.notify).Return([]byte{0x09, 0x00}, nil)

	value, err := c.Read(context.Background(), "fa03")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0x00}, value)
}

func TestConnectionNotificationPump(t *testing.T) {
	// GOAL: Verify go-ble callback values reach the Notifications channel as independent copies
	//
	// TEST SCENARIO: subscribe fa03 → callback fires with a reused buffer → consumer sees original bytes

	c, client, tp, _ := newTestConnection(t, 247)

	var handler ble.NotificationHandler
	client.On("Subscribe", tp.notify, false, mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(ble.NotificationHandler) }).
		Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx, "fa03"))
	require.NoError(t, c.Subscribe(ctx, "fa03"), "repeated subscribe MUST be a no-op")
	require.NotNil(t, handler)

	buf := []byte{0x05, 0x00, 0x01, 0x00, 0x01}
	handler(buf)
	buf[4] = 0xff
	handler([]byte{0x05, 0x00, 0x01, 0x00, 0x03})

	for _, expected := range [][]byte{{0x05, 0x00, 0x01, 0x00, 0x01}, {0x05, 0x00, 0x01, 0x00, 0x03}} {
		select {
		case n := <-c.Notifications():
			assert.Equal(t, "0000fa03-0000-1000-8000-00805f9b34fb", n.UUID)
			assert.Equal(t, expected, n.Value)
		case <-time.After(time.Second):
			t.Fatal("notification MUST be forwarded")
		}
	}
	client.AssertNumberOfCalls(t, "Subscribe", 1)

	client.On("Unsubscribe", tp.notify, false).Return(nil).Once()
	require.NoError(t, c.Unsubscribe(ctx, "fa03"))
	require.NoError(t, c.Unsubscribe(ctx, "fa03"), "unsubscribe without subscription MUST be a no-op")
	client.AssertNumberOfCalls(t, "Unsubscribe", 1)
}

func TestConnectionIndicateOnly(t *testing.T) {
	c, client, tp, _ := newTestConnection(t, 247)
	client.On("Subscribe", tp.indicate, true, mock.Anything).Return(nil).Once()

	require.NoError(t, c.Subscribe(context.Background(), "fa04"))
	client.AssertExpectations(t)
}

func TestConnectionDisconnect(t *testing.T) {
	c, client, _, hook := newTestConnection(t, 247)
	ctx := context.Background()

	require.NoError(t, c.Disconnect(ctx))

	_, open := <-c.Notifications()
	assert.False(t, open, "notifications MUST be closed after disconnect")
	assert.ErrorIs(t, c.Write(ctx, "fa02", []byte{0x01}, false), device.ErrNotConnected)

	require.NoError(t, c.Disconnect(ctx), "second disconnect MUST be a no-op")
	client.AssertNumberOfCalls(t, "CancelConnection", 1)

	var infos int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Message == "BLE device disconnected successfully" {
			infos++
		}
	}
	assert.Equal(t, 1, infos)
}

func TestConnectionDiscoveryFailure(t *testing.T) {
	client := &mockClient{}
	client.On("DiscoverProfile", true).Return(nil, errors.New("disconnected"))

	_, err := newConnection(client, 23, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrNotConnected)
	assert.Contains(t, err.Error(), "failed to discover profile")
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		msg      string
		expected error
	}{
		{"central manager has invalid state: have=4 want=5: is Bluetooth turned on?", device.ErrBluetoothOff},
		{"Bluetooth is turned off", device.ErrBluetoothOff},
		{"device not connected", device.ErrNotConnected},
		{"peripheral disconnected", device.ErrNotConnected},
		{"device already connected", device.ErrAlreadyConnected},
		{"connection is not initialized", device.ErrNotInitialized},
		{"can't init hci: no devices available", device.ErrBluetoothOff},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			src := errors.New(tt.msg)
			err := NormalizeError(src)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, src, "original error MUST stay in the chain")
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	assert.NoError(t, NormalizeError(nil))
	other := errors.New("att: insufficient authentication")
	assert.Same(t, other, NormalizeError(other))

	classified := fmt.Errorf("write: %w", device.ErrNotConnected)
	assert.Same(t, classified, NormalizeError(classified), "classified errors MUST not be wrapped twice")
}

func TestConvertProperties(t *testing.T) {
	assert.Equal(t, device.PropWriteWithoutResponse|device.PropNotify, convertProperties(ble.CharWriteNR|ble.CharNotify))
	assert.Equal(t, device.Properties(0), convertProperties(ble.CharSignedWrite|ble.CharExtended))
	assert.Equal(t, device.PropBroadcast|device.PropRead|device.PropWrite|device.PropIndicate,
		convertProperties(ble.CharBroadcast|ble.CharRead|ble.CharWrite|ble.CharIndicate))
}
