package protocol

import (
	"fmt"
	"time"
)

// Command namespaces
const (
	NamespaceTransfer byte = 0x00
	NamespaceMode     byte = 0x01
	NamespaceEffect   byte = 0x02
	NamespaceSettings byte = 0x80
)

// Command ids
const (
	CmdSetTime         byte = 0x01
	CmdFullscreenColor byte = 0x02
	CmdFreeze          byte = 0x03
	CmdBrightness      byte = 0x04
	CmdDIYMode         byte = 0x04
	CmdFlip            byte = 0x06
	CmdClock           byte = 0x06
	CmdPower           byte = 0x07
	CmdCountdown       byte = 0x08
	CmdScoreboard      byte = 0x0a
)

// DIYMode switches the panel between animation playback and direct drawing.
type DIYMode byte

const (
	DIYOff DIYMode = iota
	DIYOn
	DIYOffKeep
	DIYOnKeep
)

// ClockStyle selects one of the built-in clock faces.
type ClockStyle byte

const (
	ClockDefault ClockStyle = iota
	ClockChristmas
	ClockRacing
	ClockInverted
	ClockHourglass
	ClockColor
)

// CountdownAction controls the countdown timer.
type CountdownAction byte

const (
	CountdownDisable CountdownAction = iota
	CountdownStart
	CountdownPause
	CountdownRestart
)

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func mustShort(commandID, namespace byte, payload ...byte) []byte {
	frame, err := EncodeShort(commandID, namespace, payload)
	if err != nil {
		// payloads here are a handful of bytes
		panic(err)
	}
	return frame
}

// PowerFrame turns the panel on or off.
func PowerFrame(on bool) []byte {
	return mustShort(CmdPower, NamespaceMode, boolByte(on))
}

// BrightnessFrame sets the panel brightness in percent (5..100).
func BrightnessFrame(percent int) ([]byte, error) {
	if percent < 5 || percent > 100 {
		return nil, fmt.Errorf("brightness %d out of range 5..100", percent)
	}
	return mustShort(CmdBrightness, NamespaceSettings, byte(percent)), nil
}

// FlipFrame rotates the picture by 180 degrees.
func FlipFrame(on bool) []byte {
	return mustShort(CmdFlip, NamespaceSettings, boolByte(on))
}

// FreezeFrame toggles freezing of the current picture.
func FreezeFrame() []byte {
	return mustShort(CmdFreeze, NamespaceTransfer)
}

// SetTimeFrame sets the device clock. The weekday is ISO numbered (Monday = 1).
func SetTimeFrame(t time.Time) []byte {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return mustShort(CmdSetTime, NamespaceSettings,
		byte(t.Year()%100), byte(t.Month()), byte(t.Day()), byte(weekday),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
}

// DIYModeFrame enters or leaves direct drawing mode.
func DIYModeFrame(mode DIYMode) ([]byte, error) {
	if mode > DIYOnKeep {
		return nil, fmt.Errorf("unknown DIY mode %d", mode)
	}
	return mustShort(CmdDIYMode, NamespaceMode, byte(mode)), nil
}

// ClockFrame shows a clock face.
func ClockFrame(style ClockStyle, showDate, hour24 bool, color RGB) ([]byte, error) {
	if style > ClockColor {
		return nil, fmt.Errorf("unknown clock style %d", style)
	}
	flags := byte(style) | boolByte(showDate)<<7 | boolByte(hour24)<<6
	return mustShort(CmdClock, NamespaceMode, flags, color.R, color.G, color.B), nil
}

// FullscreenColorFrame fills the panel with one colour.
func FullscreenColorFrame(color RGB) []byte {
	return mustShort(CmdFullscreenColor, NamespaceEffect, color.R, color.G, color.B)
}

// CountdownFrame drives the countdown timer.
func CountdownFrame(action CountdownAction, minutes, seconds int) ([]byte, error) {
	if action > CountdownRestart {
		return nil, fmt.Errorf("unknown countdown action %d", action)
	}
	if minutes < 0 || minutes > 99 || seconds < 0 || seconds > 59 {
		return nil, fmt.Errorf("countdown %d:%02d out of range", minutes, seconds)
	}
	return mustShort(CmdCountdown, NamespaceSettings, byte(action), byte(minutes), byte(seconds)), nil
}

// ScoreboardFrame shows two scores of up to 999 each.
func ScoreboardFrame(left, right int) ([]byte, error) {
	if left < 0 || left > 999 || right < 0 || right > 999 {
		return nil, fmt.Errorf("scores %d:%d out of range 0..999", left, right)
	}
	return mustShort(CmdScoreboard, NamespaceSettings,
		byte(left), byte(left>>8), byte(right), byte(right>>8)), nil
}
