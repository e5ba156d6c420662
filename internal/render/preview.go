package render

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"epdfast/internal/frame"
)

var (
	inkColour   = color.NRGBA{A: 0xFF}
	paperColour = color.NRGBA{R: 0xF0, G: 0xF0, B: 0xE8, A: 0xFF}
)

// Preview prints buf to w as ANSI colour blocks, sampling every step-th
// pixel on each axis. A step below 1 picks one that keeps the output at most
// 100 columns wide.
func Preview(w io.Writer, buf *frame.Buffer, step int) error {
	width, height := buf.Size()
	if step < 1 {
		step = (width + 99) / 100
		if step < 1 {
			step = 1
		}
	}

	p := ansi256.Default
	var out bytes.Buffer
	for y := 0; y < height; y += step {
		for x := 0; x < width; x += step {
			c := paperColour
			if buf.GetPixel(x, y) == frame.Black {
				c = inkColour
			}
			out.WriteString(p.Block(c))
		}
		out.WriteString("\033[0m\n")
	}
	_, err := out.WriteTo(w)
	return err
}

// PreviewStdout is Preview on a colour-capable stdout, Windows included.
func PreviewStdout(buf *frame.Buffer, step int) error {
	return Preview(colorable.NewColorableStdout(), buf, step)
}

// PNG encodes the logical image held in buf.
func PNG(w io.Writer, buf *frame.Buffer) error {
	if err := imaging.Encode(w, buf, imaging.PNG); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}
