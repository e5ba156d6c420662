// Package screen resolves a packed screen identifier into the geometry and
// waveform quirks of a Pervasive Displays iTC panel with embedded fast update.
package screen

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is the packed screen identifier 0xEESSTT:
//   - EE: feature bits (FeatureFast, FeatureTouch)
//   - SS: size code (0x27 for 2.71", ...)
//   - TT: controller / film type
type Code uint32

// Feature bits carried in the top byte of a Code.
const (
	FeatureFast  = 0x01
	FeatureTouch = 0x02
)

// Supported screens with embedded fast update.
const (
	EPD154Fast      Code = 0x01150C
	EPD213Fast      Code = 0x01210E
	EPD266Fast      Code = 0x01260C
	EPD271Fast      Code = 0x012709
	EPD271TouchFast Code = 0x032709
	EPD287Fast      Code = 0x012809
	EPD370Fast      Code = 0x01370C
	EPD370TouchFast Code = 0x03370C
	EPD417Fast      Code = 0x01410D
	EPD437Fast      Code = 0x01430C
	EPD581Fast      Code = 0x01580B
)

// Extra returns the feature byte.
func (c Code) Extra() uint8 { return uint8(c >> 16) }

// Size returns the size byte.
func (c Code) Size() uint8 { return uint8(c >> 8) }

// Type returns the controller / film type byte.
func (c Code) Type() uint8 { return uint8(c) }

// SizeType returns the 16-bit size and type part used to select the PSR family.
func (c Code) SizeType() uint16 { return uint16(c) }

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%06X", uint32(c))
}

var codeNames = map[Code]string{
	EPD154Fast:      "154-fast",
	EPD213Fast:      "213-fast",
	EPD266Fast:      "266-fast",
	EPD271Fast:      "271-fast",
	EPD271TouchFast: "271-touch-fast",
	EPD287Fast:      "287-fast",
	EPD370Fast:      "370-fast",
	EPD370TouchFast: "370-touch-fast",
	EPD417Fast:      "417-fast",
	EPD437Fast:      "437-fast",
	EPD581Fast:      "581-fast",
}

// ParseCode accepts either a screen name ("271-fast") or a hexadecimal code
// ("0x012709").
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for c, name := range codeNames {
		if name == s {
			return c, nil
		}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("screen: invalid code %q: %w", s, err)
	}
	return Code(v), nil
}

// Family groups panels sharing board timings.
type Family uint8

const (
	FamilySmall Family = iota
	FamilyMedium
	FamilyLarge
)

func (f Family) String() string {
	switch f {
	case FamilyMedium:
		return "medium"
	case FamilyLarge:
		return "large"
	default:
		return "small"
	}
}

// ResetTiming holds the delays, in milliseconds, of the board reset pulse:
// settle, reset high, reset low, reset high, chip-select high.
type ResetTiming [5]int

// Profile describes one panel model. It is derived once from a Code and never
// changes afterwards.
type Profile struct {
	Code Code

	// SizeV is the long axis, SizeH the short axis, both in pixels.
	SizeV int
	SizeH int
	// Diagonal in hundredths of an inch.
	Diagonal int

	BufferRowBytes int
	PlaneSize      int
	// FrameSize is the number of bytes sent per image command. Panels made
	// of two half-screens only take half a plane.
	FrameSize int

	FastCapable     bool
	AltVoltageTable bool

	// PSR holds the panel settings for a global update.
	PSR [2]byte

	Family Family
	Reset  ResetTiming
}

// Supported reports whether the code matched a known geometry.
func (p Profile) Supported() bool {
	return p.SizeV > 0 && p.SizeH > 0
}

type geometry struct {
	sizeV, sizeH, diagonal int
	family                 Family
	dualHalf               bool
}

// Keyed by size code.
var geometries = map[uint8]geometry{
	0x15: {sizeV: 152, sizeH: 152, diagonal: 154},
	0x21: {sizeV: 212, sizeH: 104, diagonal: 213},
	0x26: {sizeV: 296, sizeH: 152, diagonal: 266},
	0x27: {sizeV: 264, sizeH: 176, diagonal: 271},
	0x28: {sizeV: 296, sizeH: 128, diagonal: 287},
	0x37: {sizeV: 416, sizeH: 240, diagonal: 370},
	0x41: {sizeV: 300, sizeH: 400, diagonal: 417},
	0x43: {sizeV: 480, sizeH: 176, diagonal: 437},
	0x56: {sizeV: 600, sizeH: 448, diagonal: 565, family: FamilyMedium},
	0x58: {sizeV: 720, sizeH: 256, diagonal: 581, family: FamilyMedium},
	0x74: {sizeV: 800, sizeH: 480, diagonal: 741, family: FamilyMedium},
	0x96: {sizeV: 672, sizeH: 960, diagonal: 969, family: FamilyLarge, dualHalf: true},
	0xB9: {sizeV: 768, sizeH: 960, diagonal: 1198, family: FamilyLarge, dualHalf: true},
}

type waveform struct {
	psr [2]byte
	alt bool
}

// defaultPSR applies to every size and type not listed in waveforms.
var defaultPSR = [2]byte{0xFF, 0x8F}

// Keyed by size and type code.
var waveforms = map[uint16]waveform{
	0x150C: {psr: [2]byte{0xCF, 0x02}, alt: true},
	0x210E: {psr: [2]byte{0xCF, 0x02}, alt: true},
	0x260C: {psr: [2]byte{0xCF, 0x02}, alt: true},
	0x2709: {psr: [2]byte{0xCF, 0x8D}},
	0x2809: {psr: [2]byte{0xCF, 0x8D}},
	0x370C: {psr: [2]byte{0xCF, 0x8F}, alt: true},
	0x410D: {psr: [2]byte{0x0F, 0x0E}},
	0x430C: {psr: [2]byte{0x0F, 0x0E}, alt: true},
}

var resetTimings = map[Family]ResetTiming{
	FamilySmall:  {5, 5, 10, 5, 5},
	FamilyMedium: {200, 20, 200, 50, 5},
	FamilyLarge:  {200, 20, 200, 200, 5},
}

// Resolve maps a code to its Profile. An unknown size code yields a profile
// with zero geometry and no feature flags; it is not an error.
func Resolve(code Code) Profile {
	p := Profile{
		Code:   code,
		PSR:    defaultPSR,
		Family: FamilySmall,
		Reset:  resetTimings[FamilySmall],
	}

	g, ok := geometries[code.Size()]
	if !ok {
		return p
	}

	p.SizeV = g.sizeV
	p.SizeH = g.sizeH
	p.Diagonal = g.diagonal
	p.Family = g.family
	p.Reset = resetTimings[g.family]

	p.BufferRowBytes = p.SizeH / 8
	p.PlaneSize = p.SizeV * p.BufferRowBytes
	p.FrameSize = p.PlaneSize
	if g.dualHalf {
		p.FrameSize = p.PlaneSize / 2
	}

	if w, ok := waveforms[code.SizeType()]; ok {
		p.PSR = w.psr
		p.AltVoltageTable = w.alt
	}
	p.FastCapable = code.Extra()&FeatureFast != 0

	return p
}

// Name returns the panel identification, e.g. `iTC 2.71"`.
func (p Profile) Name() string {
	s := fmt.Sprintf("iTC %d.%02d\"", p.Diagonal/100, p.Diagonal%100)
	if p.Code.Extra()&FeatureTouch != 0 {
		s += " touch"
	}
	return s
}
