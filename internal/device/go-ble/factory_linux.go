//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates the HCI-backed ble.Device. It needs CAP_NET_ADMIN or root.
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}
