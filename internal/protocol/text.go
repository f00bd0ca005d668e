package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// TextMetadataSize is the fixed size of the text rendering block that precedes the glyphs.
const TextMetadataSize = 14

// TextMode is the scrolling/animation effect applied to a text transfer.
type TextMode byte

const (
	TextReplace TextMode = iota
	TextMarquee
	TextReversedMarquee
	TextVerticalRise
	TextVerticalLower
	TextBlink
	TextBreathe
	TextSnowflake
	TextLaser
)

var textModeNames = []string{"replace", "marquee", "reversed-marquee", "vertical-rise", "vertical-lower", "blink", "breathe", "snowflake", "laser"}

func (m TextMode) String() string {
	if int(m) < len(textModeNames) {
		return textModeNames[m]
	}
	return fmt.Sprintf("TextMode(%d)", byte(m))
}

// ParseTextMode maps a CLI/config name onto a mode.
func ParseTextMode(s string) (TextMode, error) {
	for i, name := range textModeNames {
		if name == s {
			return TextMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown text mode %q", s)
}

// TextColorMode selects how glyph foreground colour is chosen by the firmware.
type TextColorMode byte

const (
	TextColorWhite TextColorMode = iota
	TextColorFixed
	TextColorRainbow1
	TextColorRainbow2
	TextColorRainbow3
	TextColorRainbow4
)

// RGB is a 24-bit colour.
type RGB struct {
	R, G, B uint8
}

// ParseRGB parses "rrggbb" (an optional leading '#' is accepted).
func ParseRGB(s string) (RGB, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	var c RGB
	if len(s) != 6 {
		return c, fmt.Errorf("invalid colour %q: want rrggbb", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return c, nil
}

// TextOptions controls how the display renders a text transfer.
type TextOptions struct {
	Mode           TextMode
	Speed          uint8 // 1..100
	ColorMode      TextColorMode
	Color          RGB
	BackgroundMode uint8 // 0 = off, 1 = solid background
	Background     RGB
	GlyphSize      GlyphSize
}

// DefaultTextOptions returns red marquee text at speed 95 on 8x16 glyphs.
func DefaultTextOptions() TextOptions {
	return TextOptions{
		Mode:      TextMarquee,
		Speed:     95,
		ColorMode: TextColorFixed,
		Color:     RGB{R: 0xff},
		GlyphSize: Glyph8x16,
	}
}

// Validate rejects options the firmware would misinterpret.
func (o TextOptions) Validate() error {
	if o.Speed < 1 || o.Speed > 100 {
		return fmt.Errorf("text speed %d out of range 1..100", o.Speed)
	}
	if int(o.Mode) >= len(textModeNames) {
		return fmt.Errorf("unknown text mode %d", o.Mode)
	}
	if o.ColorMode > TextColorRainbow4 {
		return fmt.Errorf("unknown text colour mode %d", o.ColorMode)
	}
	if o.BackgroundMode > 1 {
		return fmt.Errorf("unknown background mode %d", o.BackgroundMode)
	}
	if o.GlyphSize != Glyph8x16 && o.GlyphSize != Glyph16x32 {
		return fmt.Errorf("unknown glyph size %d", o.GlyphSize)
	}
	return nil
}

// ErrEmptyText is returned for an empty text transfer.
var ErrEmptyText = errors.New("text is empty")

// BuildTextPayload renders the logical text payload: metadata block then, per character,
// the glyph prefix and bitmap.
func BuildTextPayload(text string, opts TextOptions) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("text is not valid UTF-8")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	count := utf8.RuneCountInString(text)
	if count > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d characters", ErrPayloadTooLarge, count)
	}

	prefix := opts.GlyphSize.Prefix()
	payload := make([]byte, TextMetadataSize, TextMetadataSize+count*(len(prefix)+opts.GlyphSize.BitmapLen()))
	binary.LittleEndian.PutUint16(payload[0:2], uint16(count))
	payload[2] = 0x00
	payload[3] = 0x01
	payload[4] = byte(opts.Mode)
	payload[5] = opts.Speed
	payload[6] = byte(opts.ColorMode)
	payload[7], payload[8], payload[9] = opts.Color.R, opts.Color.G, opts.Color.B
	payload[10] = opts.BackgroundMode
	payload[11], payload[12], payload[13] = opts.Background.R, opts.Background.G, opts.Background.B

	for _, r := range text {
		payload = append(payload, prefix[:]...)
		payload = append(payload, RenderGlyph(r, opts.GlyphSize)...)
	}
	return payload, nil
}

// EncodeText returns the complete framed text block: header followed by the payload.
func EncodeText(text string, opts TextOptions) ([]byte, error) {
	payload, err := BuildTextPayload(text, opts)
	if err != nil {
		return nil, err
	}

	header, err := EncodeTextHeader(len(payload), uint32(len(payload)), Checksum(payload))
	if err != nil {
		return nil, err
	}
	return append(header, payload...), nil
}
