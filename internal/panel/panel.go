// Package panel is the physical link to an EXT3 extension board: a SPI bus
// plus the data/command, chip select, reset and busy GPIOs, implemented on
// top of periph.io.
package panel

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"epdfast/internal/config"
	appLog "epdfast/internal/log"
	"epdfast/internal/screen"
)

// ErrBusyTimeout is returned by WaitBusy when the busy line stays low for
// longer than the configured timeout.
var ErrBusyTimeout = errors.New("panel: busy timeout")

// Opts tunes a Dev.
type Opts struct {
	Frequency   physic.Frequency
	BusyTimeout time.Duration
	BusyPoll    time.Duration
}

// DefaultOpts matches the EXT3 boards: 4MHz SPI, 30s busy timeout.
var DefaultOpts = Opts{
	Frequency:   4 * physic.MegaHertz,
	BusyTimeout: 30 * time.Second,
	BusyPoll:    10 * time.Millisecond,
}

// Dev drives one panel. It implements the transport used by the COG update
// sequence.
type Dev struct {
	c         spi.Conn
	maxTxSize int
	closer    spi.PortCloser

	dc      gpio.PinOut
	cs      gpio.PinOut
	rst     gpio.PinOut
	busy    gpio.PinIn
	flashCS gpio.PinOut

	opts Opts
}

// New connects to the panel on p. flashCS may be nil when the board flash
// is not wired.
func New(p spi.Port, dc, cs, rst gpio.PinOut, busy gpio.PinIn, flashCS gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Frequency == 0 {
		o.Frequency = DefaultOpts.Frequency
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultOpts.BusyTimeout
	}
	if o.BusyPoll <= 0 {
		o.BusyPoll = DefaultOpts.BusyPoll
	}

	c, err := p.Connect(o.Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("panel: connect spi: %w", err)
	}

	maxTxSize := 0
	if limits, ok := c.(conn.Limits); ok {
		maxTxSize = limits.MaxTxSize()
	}
	if maxTxSize == 0 {
		maxTxSize = 4096
	}

	d := &Dev{
		c:         c,
		maxTxSize: maxTxSize,
		dc:        dc,
		cs:        cs,
		rst:       rst,
		busy:      busy,
		flashCS:   flashCS,
		opts:      o,
	}

	eh := errorHandler{d: d}
	eh.csOut(gpio.High)
	eh.dcOut(gpio.High)
	eh.rstOut(gpio.High)
	if flashCS != nil {
		eh.flashCSOut(gpio.High)
	}
	if eh.err != nil {
		return nil, fmt.Errorf("panel: init pins: %w", eh.err)
	}
	return d, nil
}

// Open initializes the periph host drivers, resolves the configured pins by
// name and connects to the configured SPI port.
func Open(cfg config.PanelConfig) (*Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("panel: periph host init failed: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("panel: open spi port %q: %w", cfg.SPIPort, err)
	}

	pin := func(role, name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("panel: %s pin %q not found", role, name)
		}
		return p, nil
	}

	var errs []error
	dc, err := pin("dc", cfg.Pins.DC)
	errs = append(errs, err)
	cs, err := pin("cs", cfg.Pins.CS)
	errs = append(errs, err)
	rst, err := pin("reset", cfg.Pins.Reset)
	errs = append(errs, err)
	busy, err := pin("busy", cfg.Pins.Busy)
	errs = append(errs, err)
	var flashCS gpio.PinOut
	if cfg.Pins.FlashCS != "" {
		p, err := pin("flash cs", cfg.Pins.FlashCS)
		errs = append(errs, err)
		flashCS = p
	}
	if err := errors.Join(errs...); err != nil {
		_ = port.Close()
		return nil, err
	}

	if err := busy.In(gpio.PullUp, gpio.NoEdge); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("panel: busy pin In failed: %w", err)
	}

	d, err := New(port, dc, cs, rst, busy, flashCS, &Opts{
		Frequency:   physic.Frequency(cfg.SPIHz) * physic.Hertz,
		BusyTimeout: cfg.BusyTimeout,
		BusyPoll:    cfg.BusyPoll,
	})
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	d.closer = port

	appLog.Info("panel opened", "spi", port.String(), "hz", cfg.SPIHz,
		"dc", cfg.Pins.DC, "cs", cfg.Pins.CS, "reset", cfg.Pins.Reset, "busy", cfg.Pins.Busy)
	return d, nil
}

// Close releases the SPI port when Dev owns it.
func (d *Dev) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Dev) String() string {
	return fmt.Sprintf("panel.Dev{%s}", d.c)
}

// Reset pulses the reset line with the board family timings: power settle,
// high, low, high, then chip select high.
func (d *Dev) Reset(t screen.ResetTiming) error {
	eh := errorHandler{d: d}

	sleepMs(t[0])
	eh.rstOut(gpio.High)
	sleepMs(t[1])
	eh.rstOut(gpio.Low)
	sleepMs(t[2])
	eh.rstOut(gpio.High)
	sleepMs(t[3])
	eh.csOut(gpio.High)
	sleepMs(t[4])

	if eh.err != nil {
		return fmt.Errorf("panel: reset: %w", eh.err)
	}
	return nil
}

// SendIndexData selects register index with DC low, then streams data with
// DC high, all inside a single chip select window.
func (d *Dev) SendIndexData(index byte, data []byte) error {
	eh := errorHandler{d: d}

	eh.dcOut(gpio.Low)
	eh.csOut(gpio.Low)
	eh.tx([]byte{index})
	eh.dcOut(gpio.High)
	for len(data) > 0 && eh.err == nil {
		n := min(len(data), d.maxTxSize)
		eh.tx(data[:n])
		data = data[n:]
	}
	// Release the bus even after a failed transfer.
	csErr := d.cs.Out(gpio.High)

	if err := errors.Join(eh.err, csErr); err != nil {
		return fmt.Errorf("panel: index 0x%02X: %w", index, err)
	}
	return nil
}

// SendCommand8 sends a single command byte without payload.
func (d *Dev) SendCommand8(code byte) error {
	eh := errorHandler{d: d}

	eh.dcOut(gpio.Low)
	eh.csOut(gpio.Low)
	eh.tx([]byte{code})
	csErr := d.cs.Out(gpio.High)

	if err := errors.Join(eh.err, csErr); err != nil {
		return fmt.Errorf("panel: command 0x%02X: %w", code, err)
	}
	return nil
}

// WaitBusy polls the busy line until it reads high. The line is low while
// the controller works.
func (d *Dev) WaitBusy() error {
	start := time.Now()
	deadline := start.Add(d.opts.BusyTimeout)
	for d.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrBusyTimeout, d.opts.BusyTimeout)
		}
		time.Sleep(d.opts.BusyPoll)
	}
	if appLog.Enabled(appLog.LevelDebug) {
		appLog.Debug("panel ready", "waited", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func sleepMs(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}
