package goble

import (
	"github.com/go-ble/ble"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
)

var propertyFlags = []struct {
	ble  ble.Property
	prop device.Properties
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
}

// convertProperties maps go-ble characteristic flags onto device.Properties.
// Signed writes and extended properties have no counterpart and are dropped.
func convertProperties(p ble.Property) device.Properties {
	var out device.Properties
	for _, f := range propertyFlags {
		if p&f.ble != 0 {
			out |= f.prop
		}
	}
	return out
}

// canonicalUUID renders a go-ble UUID in the dashed 128-bit form used by the device package.
func canonicalUUID(u ble.UUID) (string, error) {
	return device.CanonicalUUID(u.String())
}
