//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates the CoreBluetooth-backed ble.Device.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}
