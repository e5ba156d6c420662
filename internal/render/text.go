package render

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	textPadding = 8.0
	lineSpacing = 1.3
)

// Text renders s black on white, word wrapped and centered in a w×h card
// framed by a rounded border. size is the font size in points; zero picks
// a size from the card height.
func Text(s string, w, h int, size float64) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0))), nil
	}
	if size <= 0 {
		size = float64(min(w, h)) / 8
	}

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}
	face := truetype.NewFace(font, &truetype.Options{Size: size})
	defer face.Close()

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2)
	dc.DrawRoundedRectangle(textPadding/2, textPadding/2, float64(w)-textPadding, float64(h)-textPadding, 10)
	dc.Stroke()

	dc.SetFontFace(face)
	dc.DrawStringWrapped(s, float64(w)/2, float64(h)/2, 0.5, 0.5,
		float64(w)-4*textPadding, lineSpacing, gg.AlignCenter)

	return dc.Image(), nil
}
