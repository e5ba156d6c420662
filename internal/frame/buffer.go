// Package frame holds the double-buffered, bit-packed image of the panel.
//
// A Buffer is one allocation of two equal planes: the next image, written by
// pixel operations, and the previous image, which mirrors what the panel last
// displayed. Only Commit touches the previous plane.
package frame

import (
	"image"
	"image/color"
	"image/draw"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epdfast/internal/screen"
)

// Grey clear patterns for even and odd buffer rows.
const (
	greyEven byte = 0b01010101
	greyOdd  byte = 0b10101010
)

// Buffer is not safe for concurrent use.
type Buffer struct {
	geo         geometry
	planeSize   int
	data        []byte
	orientation Orientation
	invert      bool
}

// New allocates a zero-filled buffer for the profile. An unsupported profile
// gets an empty buffer on which every pixel access is a no-op.
func New(p screen.Profile) *Buffer {
	return &Buffer{
		geo: geometry{
			sizeV:    p.SizeV,
			sizeH:    p.SizeH,
			rowBytes: p.BufferRowBytes,
		},
		planeSize: p.PlaneSize,
		data:      make([]byte, 2*p.PlaneSize),
	}
}

// Orientation returns the current rotation state.
func (b *Buffer) Orientation() Orientation { return b.orientation }

// SetOrientation stores o modulo 4.
func (b *Buffer) SetOrientation(o Orientation) { b.orientation = o % 4 }

// Invert reports whether the black/white polarity is flipped.
func (b *Buffer) Invert() bool { return b.invert }

// SetInvert flips the polarity used by every later read and write. Existing
// buffer content is left as is.
func (b *Buffer) SetInvert(invert bool) { b.invert = invert }

// Size returns the logical width and height for the current orientation.
func (b *Buffer) Size() (int, int) {
	if b.orientation.Landscape() {
		return b.geo.sizeV, b.geo.sizeH
	}
	return b.geo.sizeH, b.geo.sizeV
}

// Next returns the plane that the next update displays.
func (b *Buffer) Next() []byte { return b.data[:b.planeSize] }

// Previous returns the plane holding what the panel currently shows.
func (b *Buffer) Previous() []byte { return b.data[b.planeSize:] }

// Commit copies the first n bytes of the next plane over the previous plane.
func (b *Buffer) Commit(n int) {
	if n > b.planeSize {
		n = b.planeSize
	}
	copy(b.Previous()[:n], b.Next()[:n])
}

// Clear fills the next plane. Grey writes a checkerboard row by row.
func (b *Buffer) Clear(c Colour) {
	next := b.Next()

	if c == Grey {
		for i := 0; i < b.geo.sizeV; i++ {
			pattern := greyEven
			if i%2 == 1 {
				pattern = greyOdd
			}
			row := next[i*b.geo.rowBytes : (i+1)*b.geo.rowBytes]
			for j := range row {
				row[j] = pattern
			}
		}
		return
	}

	fill := byte(0x00)
	if rawBit(c, b.invert) {
		fill = 0xFF
	}
	for i := range next {
		next[i] = fill
	}
}

// SetPixel writes one logical pixel. Points outside the panel are ignored.
func (b *Buffer) SetPixel(x, y int, c Colour) {
	ok, z, bit := toBufferCoordinate(b.geo, x, y, b.orientation)
	if !ok {
		return
	}

	if rawBit(dither(c, x, y), b.invert) {
		b.data[z] |= 1 << bit
	} else {
		b.data[z] &^= 1 << bit
	}
}

// GetPixel reads one logical pixel from the next plane. Points outside the
// panel read as White.
func (b *Buffer) GetPixel(x, y int) Colour {
	ok, z, bit := toBufferCoordinate(b.geo, x, y, b.orientation)
	if !ok {
		return White
	}
	return colourOf(b.data[z]&(1<<bit) != 0, b.invert)
}

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements image.Image.
func (b *Buffer) Bounds() image.Rectangle {
	w, h := b.Size()
	return image.Rect(0, 0, w, h)
}

// At implements image.Image. White pixels are image1bit.On.
func (b *Buffer) At(x, y int) color.Color {
	return image1bit.Bit(b.GetPixel(x, y) == White)
}

// Set implements draw.Image.
func (b *Buffer) Set(x, y int, c color.Color) {
	if image1bit.BitModel.Convert(c).(image1bit.Bit) {
		b.SetPixel(x, y, White)
	} else {
		b.SetPixel(x, y, Black)
	}
}

var _ draw.Image = &Buffer{}
