// Package epd is the user-facing driver for Pervasive Displays iTC panels
// with embedded fast update, mounted on an EXT3 extension board.
//
// A Driver owns the double-buffered frame and runs the COG update sequence
// through a Transport. It is not safe for concurrent use.
package epd

import (
	"errors"
	"fmt"
	"time"

	"epdfast/internal/cog"
	"epdfast/internal/frame"
	appLog "epdfast/internal/log"
	"epdfast/internal/screen"
)

// Transport is the board link: the COG command channel plus the reset line.
type Transport interface {
	cog.Transport
	Reset(t screen.ResetTiming) error
}

// ModeChecker may downgrade the requested update mode, typically from the
// ambient temperature.
type ModeChecker interface {
	CheckTemperatureMode(requested cog.UpdateMode) cog.UpdateMode
}

// Opts tunes a Driver. The zero value is usable.
type Opts struct {
	// Checker validates modes before each flush; nil accepts every mode.
	Checker ModeChecker
	// SettleDelay is the pause after each flush of Regenerate. Zero selects
	// 100ms.
	SettleDelay time.Duration
}

const defaultSettleDelay = 100 * time.Millisecond

// Driver is a handle to one panel.
type Driver struct {
	t       Transport
	checker ModeChecker
	settle  time.Duration

	profile screen.Profile
	buf     *frame.Buffer
}

// New resets the board with the timings of the panel family, allocates the
// frame for code and clears it to white in orientation 0.
//
// An unknown code yields a driver with an empty frame: drawing is ignored
// and flushes send zero-length planes.
func New(code screen.Code, t Transport, opts *Opts) (*Driver, error) {
	if opts == nil {
		opts = &Opts{}
	}
	d := &Driver{
		t:       t,
		checker: opts.Checker,
		settle:  opts.SettleDelay,
		profile: screen.Resolve(code),
	}
	if d.settle <= 0 {
		d.settle = defaultSettleDelay
	}
	if !d.profile.Supported() {
		appLog.Warn("unknown screen size, driver is inert", "code", code)
	}

	if err := t.Reset(d.profile.Reset); err != nil {
		return nil, fmt.Errorf("epd: begin: %w", err)
	}

	d.buf = frame.New(d.profile)
	d.buf.SetOrientation(0)
	d.buf.SetInvert(false)
	d.buf.Clear(frame.White)

	x, y := d.ScreenSizeX(), d.ScreenSizeY()
	appLog.Info("screen ready", "whoami", d.WhoAmI(), "code", code, "size", fmt.Sprintf("%dx%d", x, y),
		"fast", d.profile.FastCapable, "family", d.profile.Family)
	return d, nil
}

// WhoAmI identifies the panel, e.g. `iTC 2.71"`.
func (d *Driver) WhoAmI() string { return d.profile.Name() }

func (d *Driver) Profile() screen.Profile { return d.profile }

// Buffer gives direct access to the frame, e.g. for image drawing.
func (d *Driver) Buffer() *frame.Buffer { return d.buf }

// ScreenSizeX returns the logical width for the current orientation.
func (d *Driver) ScreenSizeX() int {
	x, _ := d.buf.Size()
	return x
}

// ScreenSizeY returns the logical height for the current orientation.
func (d *Driver) ScreenSizeY() int {
	_, y := d.buf.Size()
	return y
}

func (d *Driver) Clear(c frame.Colour) { d.buf.Clear(c) }

func (d *Driver) SetPixel(x, y int, c frame.Colour) { d.buf.SetPixel(x, y, c) }

func (d *Driver) GetPixel(x, y int) frame.Colour { return d.buf.GetPixel(x, y) }

func (d *Driver) SetOrientation(o frame.Orientation) { d.buf.SetOrientation(o) }

func (d *Driver) Orientation() frame.Orientation { return d.buf.Orientation() }

func (d *Driver) SetInvert(invert bool) { d.buf.SetInvert(invert) }

// Flush displays the frame with a fast update.
func (d *Driver) Flush() error {
	_, err := d.FlushMode(cog.Fast)
	return err
}

// FlushMode displays the frame with mode after the mode checker had its say,
// and returns the mode actually used. A resulting None is not an error:
// nothing is sent and the frame is kept.
func (d *Driver) FlushMode(mode cog.UpdateMode) (cog.UpdateMode, error) {
	if d.checker != nil {
		mode = d.checker.CheckTemperatureMode(mode)
	}
	if mode == cog.None {
		appLog.Info("flush skipped", "mode", mode)
		return cog.None, nil
	}

	start := time.Now()
	err := cog.Update(d.t, d.profile, d.buf, mode)
	if err != nil && !errors.Is(err, cog.ErrNoUpdate) {
		appLog.Error("flush failed", err, "mode", mode, "elapsed", time.Since(start).Round(time.Millisecond))
		return mode, fmt.Errorf("epd: flush %s: %w", mode, err)
	}
	appLog.Info("flush", "mode", mode, "elapsed", time.Since(start).Round(time.Millisecond))
	return mode, nil
}

// Regenerate fights ghosting: a black flush then a white flush, each
// followed by the settle delay. The frame is left white. It returns the mode
// the last flush ran at; None means the panel was not touched.
func (d *Driver) Regenerate() (cog.UpdateMode, error) {
	var (
		used cog.UpdateMode
		errs []error
	)
	for _, c := range []frame.Colour{frame.Black, frame.White} {
		d.buf.Clear(c)
		mode, err := d.FlushMode(cog.Fast)
		if err != nil {
			errs = append(errs, err)
		}
		used = mode
		if mode == cog.None {
			continue
		}
		time.Sleep(d.settle)
	}
	return used, errors.Join(errs...)
}
