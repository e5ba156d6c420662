// Package runner serializes every access to the panel and drives the
// scheduled jobs of the daemon.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"epdfast/internal/cog"
	"epdfast/internal/frame"
	appLog "epdfast/internal/log"
	"epdfast/internal/render"
)

// Device is the part of epd.Driver the runner needs.
type Device interface {
	WhoAmI() string
	Buffer() *frame.Buffer
	FlushMode(mode cog.UpdateMode) (cog.UpdateMode, error)
	Regenerate() (cog.UpdateMode, error)
}

// ErrStopped is returned by panel operations after Stop.
var ErrStopped = errors.New("runner: stopped")

// Status describes the last panel operation.
type Status struct {
	Screen    string         `json:"screen"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Mode      cog.UpdateMode `json:"mode"`
	Requested cog.UpdateMode `json:"requested"`
	Flushes   int            `json:"flushes"`
	LastAt    time.Time      `json:"last_at,omitzero"`
	LastError string         `json:"last_error,omitempty"`
}

// Runner owns a Device. All methods are safe for concurrent use; panel
// operations run one at a time.
type Runner struct {
	mu     sync.Mutex
	dev    Device
	mode    cog.UpdateMode
	status  Status
	stopped bool

	cron *cron.Cron
}

// New wraps dev. mode is the default for Flush and Draw.
func New(dev Device, mode cog.UpdateMode) *Runner {
	w, h := dev.Buffer().Size()
	return &Runner{
		dev:  dev,
		mode: mode,
		status: Status{
			Screen: dev.WhoAmI(),
			Width:  w,
			Height: h,
		},
		cron: cron.New(
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
	}
}

// DefaultMode returns the mode used by Flush and Draw.
func (r *Runner) DefaultMode() cog.UpdateMode { return r.mode }

// lock takes r.mu for a panel operation. It fails once the runner stopped.
func (r *Runner) lock() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	return nil
}

// Do runs fn with exclusive access to the device.
func (r *Runner) Do(fn func(d Device) error) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.mu.Unlock()
	return fn(r.dev)
}

// flushLocked flushes and records the outcome; r.mu must be held.
func (r *Runner) flushLocked(mode cog.UpdateMode) (cog.UpdateMode, error) {
	used, err := r.dev.FlushMode(mode)
	r.record(mode, used, err)
	return used, err
}

func (r *Runner) record(requested, used cog.UpdateMode, err error) {
	r.status.Requested = requested
	r.status.Mode = used
	r.status.LastAt = time.Now()
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
	if err == nil && used != cog.None {
		r.status.Flushes++
	}
}

// Flush displays the current frame.
func (r *Runner) Flush(mode cog.UpdateMode) (cog.UpdateMode, error) {
	if err := r.lock(); err != nil {
		return cog.None, err
	}
	defer r.mu.Unlock()
	return r.flushLocked(mode)
}

// Clear fills the frame with c and flushes it.
func (r *Runner) Clear(c frame.Colour, mode cog.UpdateMode) (cog.UpdateMode, error) {
	if err := r.lock(); err != nil {
		return cog.None, err
	}
	defer r.mu.Unlock()
	r.dev.Buffer().Clear(c)
	return r.flushLocked(mode)
}

// Draw renders img into the frame and flushes it.
func (r *Runner) Draw(img image.Image, mode cog.UpdateMode) (cog.UpdateMode, error) {
	if err := r.lock(); err != nil {
		return cog.None, err
	}
	defer r.mu.Unlock()
	render.Draw(r.dev.Buffer(), img)
	return r.flushLocked(mode)
}

// Regenerate runs the black/white ghost-reduction cycle. The status keeps
// the mode the cycle actually ran at.
func (r *Runner) Regenerate() error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.mu.Unlock()
	used, err := r.dev.Regenerate()
	r.record(cog.Fast, used, err)
	return err
}

// Redraw fetches an image from src at the frame size and displays it with
// the default mode.
func (r *Runner) Redraw(ctx context.Context, src Source) error {
	st := r.Status()
	img, err := src(ctx, st.Width, st.Height)
	if err != nil {
		return fmt.Errorf("runner: source: %w", err)
	}
	_, err = r.Draw(img, r.mode)
	return err
}

// Snapshot writes the frame as PNG.
func (r *Runner) Snapshot(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return render.PNG(w, r.dev.Buffer())
}

// Preview prints the frame to the terminal.
func (r *Runner) Preview(step int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return render.PreviewStdout(r.dev.Buffer(), step)
}

// Status returns a copy of the current status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Schedule registers job under the cron spec (standard five fields or
// descriptors such as @hourly). An empty spec is ignored.
func (r *Runner) Schedule(ctx context.Context, name, spec string, job func(ctx context.Context) error) error {
	if spec == "" {
		return nil
	}
	_, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			appLog.Error("scheduled job failed", err, "job", name)
			return
		}
		appLog.Info("scheduled job done", "job", name, "elapsed", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("runner: schedule %s %q: %w", name, spec, err)
	}
	appLog.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start runs the scheduler in the background until Stop.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the scheduler, waits for running jobs and for the panel
// operation in progress, then rejects further operations with ErrStopped.
// The transport may be closed once Stop returns nil. If ctx ends first Stop
// returns its error and the wait carries on in the background.
func (r *Runner) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-r.cron.Stop().Done()
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
	}()

	select {
	case <-done:
		appLog.Info("runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runner: stop: %w", ctx.Err())
	}
}

// cronLogger routes cron's own logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
