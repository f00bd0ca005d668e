// Package notify interprets raw notification payloads sent by the display.
//
// Decoding is stateless and total: any non-empty payload maps onto exactly one Event.
// Payloads the decoder does not recognise become Unknown so callers can tell "a
// notification arrived but not the expected one" apart from "nothing arrived".
package notify

import (
	"encoding/hex"
	"fmt"
)

// Family identifies the bulk transfer an acknowledgement belongs to.
type Family byte

const (
	FamilyGif   Family = 0x01
	FamilyImage Family = 0x02
	FamilyText  Family = 0x03
)

func (f Family) String() string {
	switch f {
	case FamilyGif:
		return "gif"
	case FamilyImage:
		return "image"
	case FamilyText:
		return "text"
	default:
		return fmt.Sprintf("family(0x%02x)", byte(f))
	}
}

// Transfer status codes carried in family acknowledgements.
const (
	StatusNextPackage byte = 0x01
	StatusFinished    byte = 0x03
)

// Event is the closed set of decoded notifications.
type Event interface {
	fmt.Stringer
	event()
}

// NextPackage asks for the next logical chunk of a transfer.
type NextPackage struct {
	Family Family
}

// Finished reports that the device considers the transfer complete.
type Finished struct {
	Family Family
}

// Error reports a device-side rejection of a transfer.
type Error struct {
	Family Family
	Status byte
}

// LedInfo describes the panel firmware and state.
type LedInfo struct {
	MCUMajor   uint8
	MCUMinor   uint8
	ScreenType uint8
	Brightness uint8
	PowerOn    bool
}

// ScheduleAck acknowledges a schedule update.
type ScheduleAck struct {
	Status byte
}

// ScreenLightTimeout reports the configured screen-light timeout.
type ScreenLightTimeout struct {
	Value uint8
}

// Unknown carries a payload the decoder does not recognise.
type Unknown struct {
	Raw []byte
}

func (NextPackage) event()        {}
func (Finished) event()           {}
func (Error) event()              {}
func (LedInfo) event()            {}
func (ScheduleAck) event()        {}
func (ScreenLightTimeout) event() {}
func (Unknown) event()            {}

func (e NextPackage) String() string { return fmt.Sprintf("next-package(%s)", e.Family) }
func (e Finished) String() string    { return fmt.Sprintf("finished(%s)", e.Family) }
func (e Error) String() string {
	return fmt.Sprintf("error(%s, status=0x%02x)", e.Family, e.Status)
}
func (e LedInfo) String() string {
	return fmt.Sprintf("led-info(mcu=%d.%d, screen=%d, brightness=%d, power=%t)",
		e.MCUMajor, e.MCUMinor, e.ScreenType, e.Brightness, e.PowerOn)
}
func (e ScheduleAck) String() string { return fmt.Sprintf("schedule-ack(status=0x%02x)", e.Status) }
func (e ScreenLightTimeout) String() string {
	return fmt.Sprintf("screen-light-timeout(%d)", e.Value)
}
func (e Unknown) String() string { return fmt.Sprintf("unknown(%s)", hex.EncodeToString(e.Raw)) }

// FamilyOf returns the transfer family of an acknowledgement event.
func FamilyOf(e Event) (Family, bool) {
	switch ev := e.(type) {
	case NextPackage:
		return ev.Family, true
	case Finished:
		return ev.Family, true
	case Error:
		return ev.Family, true
	default:
		return 0, false
	}
}
