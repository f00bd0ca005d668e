//go:build !darwin && !linux

package goble

import (
	"github.com/go-ble/ble"
)

// DeviceFactory has no backend on this platform.
var DeviceFactory = func() (ble.Device, error) {
	return nil, ErrUnsupportedPlatform
}
