package notify

import (
	"errors"

	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// ErrEmptyPayload is the only decode failure.
var ErrEmptyPayload = errors.New("empty notification payload")

// device-info command ids in the settings namespace
const (
	cmdLedInfo            byte = 0x01
	cmdScheduleAck        byte = 0x05
	cmdScreenLightTimeout byte = 0x0f

	ledInfoMinPayload = 5
)

// Decode maps a raw notification onto an Event.
func Decode(b []byte) (Event, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}

	frame, err := protocol.DecodeShort(b)
	if err != nil {
		return unknown(b), nil
	}

	switch frame.Namespace {
	case protocol.NamespaceTransfer:
		if ev, ok := decodeTransferAck(frame); ok {
			return ev, nil
		}
	case protocol.NamespaceSettings:
		if ev, ok := decodeDeviceInfo(frame); ok {
			return ev, nil
		}
	}
	return unknown(b), nil
}

func decodeTransferAck(frame protocol.ShortFrame) (Event, bool) {
	family := Family(frame.CommandID)
	switch family {
	case FamilyGif, FamilyImage, FamilyText:
	default:
		return nil, false
	}
	if len(frame.Payload) != 1 {
		return nil, false
	}

	switch status := frame.Payload[0]; status {
	case StatusNextPackage:
		return NextPackage{Family: family}, true
	case StatusFinished:
		return Finished{Family: family}, true
	default:
		return Error{Family: family, Status: status}, true
	}
}

func decodeDeviceInfo(frame protocol.ShortFrame) (Event, bool) {
	p := frame.Payload
	switch frame.CommandID {
	case cmdLedInfo:
		if len(p) < ledInfoMinPayload {
			return nil, false
		}
		return LedInfo{
			MCUMajor:   p[0],
			MCUMinor:   p[1],
			ScreenType: p[2],
			Brightness: p[3],
			PowerOn:    p[4] != 0,
		}, true
	case cmdScheduleAck:
		if len(p) != 1 {
			return nil, false
		}
		return ScheduleAck{Status: p[0]}, true
	case cmdScreenLightTimeout:
		if len(p) != 1 {
			return nil, false
		}
		return ScreenLightTimeout{Value: p[0]}, true
	}
	return nil, false
}

func unknown(b []byte) Unknown {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Unknown{Raw: raw}
}
