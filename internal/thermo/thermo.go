// Package thermo reads the ambient temperature and downgrades the requested
// update mode when the panel is outside its operating range.
package thermo

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/tmp102"
	"periph.io/x/host/v3"

	"epdfast/internal/cog"
	"epdfast/internal/config"
	appLog "epdfast/internal/log"
)

// Operating ranges in °C, bounds included.
const (
	fastMin   = 15
	fastMax   = 30
	globalMin = 0
	globalMax = 50
)

// CheckMode returns the mode the panel can run at celsius. Fast and partial
// fall back to global outside [15, 30] °C; global falls back to none outside
// [0, 50] °C.
func CheckMode(celsius float64, requested cog.UpdateMode) cog.UpdateMode {
	mode := requested
	if (mode == cog.Fast || mode == cog.Partial) && (celsius < fastMin || celsius > fastMax) {
		mode = cog.Global
	}
	if mode == cog.Global && (celsius < globalMin || celsius > globalMax) {
		mode = cog.None
	}
	return mode
}

// Reader provides the ambient temperature in °C.
type Reader interface {
	Celsius() (float64, error)
}

// Fixed is a Reader returning a constant, for boards without a sensor.
type Fixed float64

func (f Fixed) Celsius() (float64, error) { return float64(f), nil }

// sensor is the subset of periph's physic.SenseEnv used here.
type sensor interface {
	Sense(env *physic.Env) error
}

// SensorReader adapts a periph environmental sensor.
type SensorReader struct {
	s sensor
}

func NewSensorReader(s sensor) *SensorReader {
	return &SensorReader{s: s}
}

func (r *SensorReader) Celsius() (float64, error) {
	var env physic.Env
	if err := r.s.Sense(&env); err != nil {
		return 0, fmt.Errorf("thermo: sense: %w", err)
	}
	return env.Temperature.Celsius(), nil
}

// OpenTMP102 opens a TMP102 on the named I²C bus; an empty name selects the
// first bus and a zero address selects 0x48.
func OpenTMP102(bus string, addr uint16) (*SensorReader, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("thermo: periph host init failed: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, nil, fmt.Errorf("thermo: open i2c bus %q: %w", bus, err)
	}
	if addr == 0 {
		addr = 0x48
	}
	dev, err := tmp102.NewI2C(b, addr, nil)
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("thermo: tmp102 at 0x%02X: %w", addr, err)
	}
	appLog.Info("temperature sensor opened", "bus", b.String(), "addr", fmt.Sprintf("0x%02X", addr))
	return NewSensorReader(dev), b, nil
}

// Open builds the Reader selected by cfg. The returned closer is nil for a
// fixed reading.
func Open(cfg config.TemperatureConfig) (Reader, io.Closer, error) {
	switch cfg.Source {
	case "i2c":
		return OpenTMP102(cfg.I2CBus, cfg.I2CAddr)
	case "", "fixed":
		return Fixed(cfg.FixedCelsius()), nil, nil
	default:
		return nil, nil, fmt.Errorf("thermo: unknown source %q", cfg.Source)
	}
}

// Checker applies CheckMode to the latest reading. When the sensor fails the
// last good reading is used; before any reading the request is passed
// through unchanged.
type Checker struct {
	r Reader

	mu   sync.Mutex
	last float64
	ok   bool
}

func NewChecker(r Reader) *Checker {
	return &Checker{r: r}
}

// CheckTemperatureMode reads the temperature and returns the allowed mode.
func (c *Checker) CheckTemperatureMode(requested cog.UpdateMode) cog.UpdateMode {
	celsius, err := c.r.Celsius()

	c.mu.Lock()
	if err == nil {
		c.last, c.ok = celsius, true
	} else {
		celsius = c.last
	}
	ok := c.ok
	c.mu.Unlock()

	if err != nil {
		appLog.Warn("temperature read failed", "err", err, "fallback", celsius, "have_fallback", ok)
		if !ok {
			return requested
		}
	}

	mode := CheckMode(celsius, requested)
	if mode != requested {
		appLog.Warn("update mode downgraded", "requested", requested, "mode", mode, "celsius", celsius)
	}
	return mode
}

// Last returns the last good reading.
func (c *Checker) Last() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.ok
}
