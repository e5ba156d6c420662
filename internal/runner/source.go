package runner

import (
	"context"
	"errors"
	"image"

	"epdfast/internal/capture"
	"epdfast/internal/config"
	"epdfast/internal/render"
)

// Source produces an image for a w×h frame.
type Source func(ctx context.Context, w, h int) (image.Image, error)

// URLSource captures a web page at the frame size.
func URLSource(url string) Source {
	return func(ctx context.Context, w, h int) (image.Image, error) {
		return capture.URL(ctx, capture.Options{URL: url, Width: w, Height: h})
	}
}

// FileSource reads an image file on every call so it can be replaced on disk.
func FileSource(path string) Source {
	return func(context.Context, int, int) (image.Image, error) {
		return render.Open(path)
	}
}

// TextSource renders a text card.
func TextSource(text string) Source {
	return func(_ context.Context, w, h int) (image.Image, error) {
		return render.Text(text, w, h, 0)
	}
}

// ErrNoSource is returned by NewSource when nothing is configured.
var ErrNoSource = errors.New("runner: no source configured")

// NewSource picks the first configured source: URL, then image, then text.
func NewSource(cfg config.SourceConfig) (Source, error) {
	switch {
	case cfg.URL != "":
		return URLSource(cfg.URL), nil
	case cfg.Image != "":
		return FileSource(cfg.Image), nil
	case cfg.Text != "":
		return TextSource(cfg.Text), nil
	}
	return nil, ErrNoSource
}
