package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
)

// ErrUnsupportedPlatform is returned by DeviceFactory on platforms without a go-ble backend.
var ErrUnsupportedPlatform = errors.New("no BLE backend for this platform")

// linkRule maps lowercase message fragments reported by go-ble to a connection sentinel.
type linkRule struct {
	state     error
	fragments []string
}

// linkRules are checked in order; "not connected" precedes the broader "disconnected".
var linkRules = []linkRule{
	{device.ErrBluetoothOff, []string{"is bluetooth turned on?", "bluetooth is turned off", "can't init hci"}},
	{device.ErrAlreadyConnected, []string{"device already connected"}},
	{device.ErrNotInitialized, []string{"connection is not initialized"}},
	{device.ErrNotConnected, []string{"device not connected", "disconnected"}},
}

// NormalizeError classifies a go-ble error as one of the device connection states so
// callers can match it with errors.Is. Both the state and err stay in the chain.
// Errors already carrying a state and unknown errors are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var state *device.ConnectionError
	if errors.As(err, &state) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range linkRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(msg, fragment) {
				return fmt.Errorf("%w: %w", rule.state, err)
			}
		}
	}
	return err
}
