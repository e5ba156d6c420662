// Package cog sequences the chip-on-glass controller of fast-update iTC
// panels: configure, transfer, refresh and power-off.
package cog

import (
	"errors"
	"fmt"

	"epdfast/internal/frame"
	"epdfast/internal/screen"
)

// Commands
const (
	panelSettings     byte = 0x00 // also soft reset, with softResetData
	powerOff          byte = 0x02
	powerOn           byte = 0x04
	dataTransmission1 byte = 0x10 // previous frame
	displayRefresh    byte = 0x12
	dataTransmission2 byte = 0x13 // next frame
	vcomDataInterval  byte = 0x50
	activeTemperature byte = 0xE0
	inputTemperature  byte = 0xE5
)

// Payload constants
const (
	softResetData       byte = 0x0E
	defaultTemperature  byte = 0x19 // 25 °C
	fastTemperatureFlag byte = 0x40
	activateTemperature byte = 0x02
	psrFastFlag0        byte = 0x10
	psrFastFlag1        byte = 0x02
	vcomFast            byte = 0x07
	vcomAlt             byte = 0x27
	vcomRefresh         byte = 0x07
)

// ErrNoUpdate is returned by Update when asked for mode None.
var ErrNoUpdate = errors.New("cog: no update requested")

// Transport carries commands to the controller. WaitBusy blocks until the
// controller is ready and owns the timeout policy.
type Transport interface {
	SendIndexData(index byte, data []byte) error
	SendCommand8(code byte) error
	WaitBusy() error
}

type controller interface {
	sendIndexData(index byte, data []byte)
	sendCommand8(code byte)
	waitBusy()
}

// errorHandler turns a Transport into a controller that stops talking after
// the first failure.
type errorHandler struct {
	t   Transport
	err error
}

func (eh *errorHandler) sendIndexData(index byte, data []byte) {
	if eh.err != nil {
		return
	}
	if err := eh.t.SendIndexData(index, data); err != nil {
		eh.err = fmt.Errorf("cog: command 0x%02X: %w", index, err)
	}
}

func (eh *errorHandler) sendCommand8(code byte) {
	if eh.err != nil {
		return
	}
	if err := eh.t.SendCommand8(code); err != nil {
		eh.err = fmt.Errorf("cog: command 0x%02X: %w", code, err)
	}
}

func (eh *errorHandler) waitBusy() {
	if eh.err != nil {
		return
	}
	if err := eh.t.WaitBusy(); err != nil {
		eh.err = fmt.Errorf("cog: wait busy: %w", err)
	}
}

// fastWaveform reports whether the fast-update settings apply.
func fastWaveform(p screen.Profile, mode UpdateMode) bool {
	return p.FastCapable && mode != Global
}

func configure(ctrl controller, p screen.Profile, mode UpdateMode) {
	temperature := defaultTemperature
	psr := p.PSR
	if fastWaveform(p, mode) {
		temperature |= fastTemperatureFlag
		psr[0] |= psrFastFlag0
		psr[1] |= psrFastFlag1
	}

	ctrl.sendIndexData(panelSettings, []byte{softResetData})
	ctrl.waitBusy()

	ctrl.sendIndexData(inputTemperature, []byte{temperature})
	ctrl.waitBusy()
	ctrl.sendIndexData(activeTemperature, []byte{activateTemperature})
	ctrl.waitBusy()
	ctrl.sendIndexData(panelSettings, psr[:])
	ctrl.waitBusy()

	if fastWaveform(p, mode) {
		ctrl.sendIndexData(vcomDataInterval, []byte{vcomFast})
		ctrl.waitBusy()

		if p.AltVoltageTable {
			ctrl.sendIndexData(vcomDataInterval, []byte{vcomAlt})
			ctrl.waitBusy()
		}
	}
}

func transfer(ctrl controller, p screen.Profile, b *frame.Buffer) {
	n := min(p.FrameSize, len(b.Next()))
	ctrl.sendIndexData(dataTransmission1, b.Previous()[:n])
	ctrl.sendIndexData(dataTransmission2, b.Next()[:n])
}

func refresh(ctrl controller, p screen.Profile, mode UpdateMode) {
	if fastWaveform(p, mode) && p.AltVoltageTable {
		ctrl.sendIndexData(vcomDataInterval, []byte{vcomRefresh})
	}

	ctrl.sendCommand8(powerOn)
	ctrl.waitBusy()

	ctrl.sendCommand8(displayRefresh)
	ctrl.waitBusy()
}

func turnOff(ctrl controller) {
	ctrl.sendCommand8(powerOff)
	ctrl.waitBusy()
}

// Update runs one full cycle displaying the next plane of b. The previous
// plane is replaced by the next plane once both planes were transferred.
//
// The cycle always ends with power-off, even after a failure in an earlier
// phase; both errors are returned. There is no retry.
func Update(t Transport, p screen.Profile, b *frame.Buffer, mode UpdateMode) error {
	if mode == None {
		return ErrNoUpdate
	}

	eh := &errorHandler{t: t}

	configure(eh, p, mode)
	transfer(eh, p, b)
	if eh.err == nil {
		b.Commit(min(p.FrameSize, len(b.Next())))
	}
	refresh(eh, p, mode)

	off := &errorHandler{t: t}
	turnOff(off)

	return errors.Join(eh.err, off.err)
}
