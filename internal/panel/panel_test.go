package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"periph.io/x/conn/v3/conn/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"epdfast/internal/screen"
)

type pins struct {
	dc, cs, rst, busy, flash *gpiotest.Pin
}

func newTestDev(t *testing.T, opts *Opts) (*Dev, *spitest.Record, pins) {
	t.Helper()
	p := pins{
		dc:    &gpiotest.Pin{N: "dc"},
		cs:    &gpiotest.Pin{N: "cs"},
		rst:   &gpiotest.Pin{N: "rst"},
		busy:  &gpiotest.Pin{N: "busy", L: gpio.High},
		flash: &gpiotest.Pin{N: "flash"},
	}
	record := &spitest.Record{}
	d, err := New(record, p.dc, p.cs, p.rst, p.busy, p.flash, opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return d, record, p
}

func TestNewIdlePins(t *testing.T) {
	_, _, p := newTestDev(t, nil)

	for _, pin := range []*gpiotest.Pin{p.cs, p.dc, p.rst, p.flash} {
		if pin.L != gpio.High {
			t.Errorf("%s = %v, want High", pin.N, pin.L)
		}
	}
}

func TestSendIndexData(t *testing.T) {
	d, record, p := newTestDev(t, nil)

	if err := d.SendIndexData(0x10, []byte{0xAA, 0x55, 0x00}); err != nil {
		t.Fatalf("SendIndexData() failed: %v", err)
	}
	if err := d.SendCommand8(0x04); err != nil {
		t.Fatalf("SendCommand8() failed: %v", err)
	}

	want := []conntest.IO{
		{W: []byte{0x10}},
		{W: []byte{0xAA, 0x55, 0x00}},
		{W: []byte{0x04}},
	}
	if diff := cmp.Diff(record.Ops, want, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Ops difference (-got +want):\n%s", diff)
	}
	if p.cs.L != gpio.High {
		t.Errorf("cs left %v, want High", p.cs.L)
	}
	if p.dc.L != gpio.Low {
		t.Errorf("dc after command = %v, want Low", p.dc.L)
	}
}

func TestSendIndexDataChunks(t *testing.T) {
	d, record, _ := newTestDev(t, nil)
	d.maxTxSize = 4

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if err := d.SendIndexData(0x13, data); err != nil {
		t.Fatalf("SendIndexData() failed: %v", err)
	}

	want := []conntest.IO{
		{W: []byte{0x13}},
		{W: []byte{1, 2, 3, 4}},
		{W: []byte{5, 6, 7, 8}},
		{W: []byte{9, 10}},
	}
	if diff := cmp.Diff(record.Ops, want, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Ops difference (-got +want):\n%s", diff)
	}
}

type failingPin struct {
	*gpiotest.Pin
}

func (f failingPin) Out(gpio.Level) error {
	return errors.New("pin stuck")
}

func TestSendIndexDataPinFailure(t *testing.T) {
	d, record, _ := newTestDev(t, nil)
	d.dc = failingPin{&gpiotest.Pin{N: "dc"}}

	err := d.SendIndexData(0x00, []byte{0x0E})
	if err == nil {
		t.Fatal("SendIndexData() succeeded with a stuck dc pin")
	}
	if len(record.Ops) != 0 {
		t.Errorf("Ops = %v, want none", record.Ops)
	}
}

func TestWaitBusy(t *testing.T) {
	d, _, p := newTestDev(t, &Opts{BusyTimeout: 20 * time.Millisecond, BusyPoll: time.Millisecond})

	if err := d.WaitBusy(); err != nil {
		t.Errorf("WaitBusy() with ready line = %v", err)
	}

	p.busy.L = gpio.Low
	err := d.WaitBusy()
	if !errors.Is(err, ErrBusyTimeout) {
		t.Errorf("WaitBusy() = %v, want ErrBusyTimeout", err)
	}
}

func TestReset(t *testing.T) {
	d, _, p := newTestDev(t, nil)
	p.rst.L = gpio.Low
	p.cs.L = gpio.Low

	if err := d.Reset(screen.ResetTiming{}); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if p.rst.L != gpio.High || p.cs.L != gpio.High {
		t.Errorf("after Reset rst=%v cs=%v, want High", p.rst.L, p.cs.L)
	}
}

func TestDiscard(t *testing.T) {
	var d Discard
	if err := d.SendIndexData(0x13, make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	if err := errors.Join(d.SendCommand8(0x12), d.WaitBusy(), d.Reset(screen.ResetTiming{}), d.Close()); err != nil {
		t.Fatal(err)
	}
	if d.Sent != 10 {
		t.Errorf("Sent = %d, want 10", d.Sent)
	}
}
