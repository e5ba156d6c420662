package frame

import (
	"fmt"
	"strings"
)

// Colour is a logical pixel colour. Grey never reaches the buffer: it is
// dithered to Black or White when written.
type Colour uint8

const (
	White Colour = iota
	Black
	Grey
)

func (c Colour) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	case Grey:
		return "grey"
	default:
		return fmt.Sprintf("Colour(%d)", uint8(c))
	}
}

// ParseColour accepts "white", "black" and "grey" (or "gray").
func ParseColour(s string) (Colour, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "white":
		return White, nil
	case "black":
		return Black, nil
	case "grey", "gray":
		return Grey, nil
	}
	return White, fmt.Errorf("frame: unknown colour %q", s)
}

// rawBit is the single place where a colour becomes a buffer bit. A set bit
// is physical black unless the polarity is inverted. c must be White or Black.
func rawBit(c Colour, invert bool) bool {
	return (c == Black) != invert
}

// colourOf is the inverse of rawBit.
func colourOf(bit, invert bool) Colour {
	if bit != invert {
		return Black
	}
	return White
}

// dither reduces Grey to a checkerboard decided by the logical coordinate.
// Parity on the physical coordinate would flip the pattern in orientations 1
// and 3.
func dither(c Colour, x, y int) Colour {
	if c != Grey {
		return c
	}
	if (x+y)%2 == 0 {
		return Black
	}
	return White
}
