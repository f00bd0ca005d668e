package protocol

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// GlyphSize selects the per-character bitmap the display expects.
type GlyphSize int

const (
	Glyph8x16 GlyphSize = iota
	Glyph16x32
)

// glyph cell geometry for the 8x16 base cell; 16x32 is a 2x nearest-neighbour upscale
const (
	baseCellWidth  = 8
	baseCellHeight = 16
	baseBaseline   = 13
)

// Width returns the bitmap width in pixels.
func (g GlyphSize) Width() int {
	if g == Glyph16x32 {
		return 2 * baseCellWidth
	}
	return baseCellWidth
}

// Height returns the bitmap height in pixels.
func (g GlyphSize) Height() int {
	if g == Glyph16x32 {
		return 2 * baseCellHeight
	}
	return baseCellHeight
}

// BitmapLen is the number of bitmap bytes per character.
func (g GlyphSize) BitmapLen() int {
	return g.Width() / 8 * g.Height()
}

// Prefix is the fixed 4-byte marker written before every character bitmap.
func (g GlyphSize) Prefix() [4]byte {
	if g == Glyph16x32 {
		return [4]byte{0x05, 0xff, 0xff, 0xff}
	}
	return [4]byte{0x02, 0xff, 0xff, 0xff}
}

func (g GlyphSize) String() string {
	return fmt.Sprintf("%dx%d", g.Width(), g.Height())
}

// RenderGlyph rasterises r with the built-in 7x13 bitmap face and packs it row by row,
// least significant bit first.
func RenderGlyph(r rune, size GlyphSize) []byte {
	cell := image.NewAlpha(image.Rect(0, 0, baseCellWidth, baseCellHeight))
	d := font.Drawer{
		Dst:  cell,
		Src:  image.Opaque,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, baseBaseline),
	}
	d.DrawString(string(r))

	scale := 1
	if size == Glyph16x32 {
		scale = 2
	}

	width, height := size.Width(), size.Height()
	bitmap := make([]byte, 0, size.BitmapLen())
	for y := 0; y < height; y++ {
		var b byte
		for x := 0; x < width; x++ {
			if cell.AlphaAt(x/scale, y/scale).A > 0x7f {
				b |= 1 << (x % 8)
			}
			if x%8 == 7 {
				bitmap = append(bitmap, b)
				b = 0
			}
		}
	}
	return bitmap
}
