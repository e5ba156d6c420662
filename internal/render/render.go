// Package render turns images and text into frame content, and the frame
// back into something a human can look at.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"epdfast/internal/frame"
)

// monochrome is the palette used for error diffusion; index 0 is ink.
var monochrome = color.Palette{color.Black, color.White}

// Fit scales img to fit inside w×h keeping its aspect ratio and centers it
// on a white canvas of exactly w×h.
func Fit(img image.Image, w, h int) *image.NRGBA {
	canvas := imaging.New(w, h, color.White)
	if w <= 0 || h <= 0 {
		return canvas
	}
	scaled := imaging.Fit(img, w, h, imaging.Lanczos)
	return imaging.PasteCenter(canvas, scaled)
}

// Dither reduces img to black and white with Floyd-Steinberg error
// diffusion.
func Dither(img image.Image) *image.Paletted {
	b := img.Bounds()
	gray := imaging.Grayscale(img)
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), monochrome)
	xdraw.FloydSteinberg.Draw(dst, dst.Bounds(), gray, gray.Bounds().Min)
	return dst
}

// Draw fits img to the logical size of buf, dithers it and writes every
// pixel. The previous plane is left alone.
func Draw(buf *frame.Buffer, img image.Image) {
	w, h := buf.Size()
	if w == 0 || h == 0 {
		return
	}
	bw := Dither(Fit(img, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := frame.White
			if bw.ColorIndexAt(x, y) == 0 {
				c = frame.Black
			}
			buf.SetPixel(x, y, c)
		}
	}
}

// Decode reads a PNG, JPEG, GIF, BMP or TIFF image, applying EXIF
// orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("render: decode: %w", err)
	}
	return img, nil
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
