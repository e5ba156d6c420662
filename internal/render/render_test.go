package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"epdfast/internal/frame"
	"epdfast/internal/screen"
)

func TestFit(t *testing.T) {
	src := imaging.New(400, 100, color.Black)
	got := Fit(src, 200, 200)

	if got.Bounds() != image.Rect(0, 0, 200, 200) {
		t.Fatalf("Bounds() = %v", got.Bounds())
	}
	// 400x100 scales to 200x50, centered vertically.
	if r, _, _, _ := got.At(100, 100).RGBA(); r != 0 {
		t.Errorf("center not black")
	}
	if r, _, _, _ := got.At(100, 10).RGBA(); r != 0xFFFF {
		t.Errorf("letterbox not white")
	}
}

func TestDither(t *testing.T) {
	src := imaging.New(16, 16, color.Gray{Y: 0x80})
	bw := Dither(src)

	black := 0
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if bw.ColorIndexAt(x, y) == 0 {
				black++
			}
		}
	}
	if black < 96 || black > 160 {
		t.Errorf("mid grey dithered to %d/256 black pixels", black)
	}
}

func TestDraw(t *testing.T) {
	buf := frame.New(screen.Resolve(screen.EPD154Fast))
	src := imaging.New(152, 152, color.White)
	for x := 0; x < 152; x++ {
		src.Set(x, 20, color.Black)
	}
	Draw(buf, src)

	if buf.GetPixel(40, 20) != frame.Black {
		t.Errorf("line pixel not black")
	}
	if buf.GetPixel(40, 80) != frame.White {
		t.Errorf("background pixel not white")
	}
	for _, b := range buf.Previous() {
		if b != 0 {
			t.Fatal("Draw touched the previous plane")
		}
	}
}

func TestText(t *testing.T) {
	img, err := Text("Hello", 264, 176, 0)
	if err != nil {
		t.Fatalf("Text() = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 264, 176) {
		t.Fatalf("Bounds() = %v", img.Bounds())
	}
	bw := Dither(img)
	ink := 0
	for y := 40; y < 136; y++ {
		for x := 20; x < 244; x++ {
			if bw.ColorIndexAt(x, y) == 0 {
				ink++
			}
		}
	}
	if ink == 0 {
		t.Errorf("no text drawn")
	}
}

func TestPreview(t *testing.T) {
	buf := frame.New(screen.Resolve(screen.EPD154Fast))
	buf.SetPixel(0, 0, frame.Black)

	var out bytes.Buffer
	if err := Preview(&out, buf, 4); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 38 {
		t.Errorf("got %d lines, want 38", len(lines))
	}
}

func TestPNG(t *testing.T) {
	buf := frame.New(screen.Resolve(screen.EPD271Fast))
	buf.SetOrientation(1)
	buf.SetPixel(1, 2, frame.Black)

	var out bytes.Buffer
	if err := PNG(&out, buf); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&out)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 264, 176) {
		t.Errorf("Bounds() = %v", img.Bounds())
	}
	if r, _, _, _ := img.At(1, 2).RGBA(); r != 0 {
		t.Errorf("pixel (1,2) not black")
	}
}
