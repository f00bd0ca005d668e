package main

import (
	"errors"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/upload"
)

// FormatUserError adds a hint to errors a user can act on.
func FormatUserError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return msg + " (turn Bluetooth on and retry)"
	case errors.Is(err, device.ErrMissingRequiredEndpoints):
		return msg + " (the device does not look like a supported LED panel)"
	case errors.Is(err, upload.ErrPanelSizeUnknown):
		return msg + " (set device.panel_width and device.panel_height in the config)"
	case errors.Is(err, upload.ErrNotifyAckTimeout), errors.Is(err, upload.ErrMissingNotifyAck):
		return msg + " (the display stopped answering; power-cycle it and retry)"
	}
	var mismatch *upload.PanelSizeMismatchError
	if errors.As(err, &mismatch) {
		return msg + " (resize the file to the panel size first)"
	}
	return msg
}
