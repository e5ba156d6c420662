package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	appLog "epdfast/internal/log"
	"epdfast/internal/render"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultWait     = "body"
	DefaultSettle   = 500 * time.Millisecond
	defaultViewport = 800
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/dashboard".
	URL string

	// Width and Height are the viewport dimensions in pixels, normally the
	// logical screen size. Zero selects 800.
	Width  int
	Height int

	// WaitSelector is a CSS selector that must be visible before the
	// screenshot is taken. Pages that load data asynchronously can expose
	// e.g. [data-ready="true"]. Empty selects "body".
	WaitSelector string

	// Settle is an extra delay for final paints. Zero selects 500ms; a
	// negative value disables it.
	Settle time.Duration

	// Timeout bounds the entire capture operation. Zero selects 30s.
	Timeout time.Duration

	// OutputPath optionally keeps the raw PNG screenshot.
	OutputPath string
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, errors.New("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = defaultViewport
	}
	if o.Height <= 0 {
		o.Height = defaultViewport
	}
	if o.WaitSelector == "" {
		o.WaitSelector = DefaultWait
	}
	if o.Settle == 0 {
		o.Settle = DefaultSettle
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

func (o Options) tasks(png *[]byte) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(o.WaitSelector, chromedp.ByQuery),
	}
	if o.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(o.Settle))
	}
	return append(tasks, chromedp.FullScreenshot(png, 100))
}

// URL launches a headless Chromium via chromedp, renders opts.URL at the
// requested viewport and returns the screenshot.
func URL(parentCtx context.Context, opts Options) (image.Image, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	appLog.Info("captured page", "url", opts.URL, "bytes", len(png), "elapsed", time.Since(start).Round(time.Millisecond))

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
			return nil, fmt.Errorf("capture: failed to write PNG: %w", err)
		}
	}

	img, err := render.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return img, nil
}
