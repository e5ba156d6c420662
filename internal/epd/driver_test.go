package epd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"epdfast/internal/cog"
	"epdfast/internal/frame"
	"epdfast/internal/panel"
	"epdfast/internal/screen"
)

type record struct {
	index byte
	data  []byte
}

// fakeTransport records index writes and single-byte commands.
type fakeTransport struct {
	resets  []screen.ResetTiming
	records []record
	waits   int
	err     error
}

func (f *fakeTransport) Reset(t screen.ResetTiming) error {
	f.resets = append(f.resets, t)
	return nil
}

func (f *fakeTransport) SendIndexData(index byte, data []byte) error {
	f.records = append(f.records, record{index, append([]byte(nil), data...)})
	return f.err
}

func (f *fakeTransport) SendCommand8(code byte) error {
	f.records = append(f.records, record{index: code})
	return f.err
}

func (f *fakeTransport) WaitBusy() error {
	f.waits++
	return nil
}

func (f *fakeTransport) indices() []byte {
	var out []byte
	for _, r := range f.records {
		out = append(out, r.index)
	}
	return out
}

type fixedChecker cog.UpdateMode

func (c fixedChecker) CheckTemperatureMode(cog.UpdateMode) cog.UpdateMode {
	return cog.UpdateMode(c)
}

func TestNew(t *testing.T) {
	var tr fakeTransport
	d, err := New(screen.EPD370Fast, &tr, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if got := d.WhoAmI(); got != `iTC 3.70"` {
		t.Errorf("WhoAmI() = %q", got)
	}
	if diff := cmp.Diff(tr.resets, []screen.ResetTiming{{5, 5, 10, 5, 5}}); diff != "" {
		t.Errorf("resets difference (-got +want):\n%s", diff)
	}
	if len(tr.records) != 0 {
		t.Errorf("New() sent %d commands, want none", len(tr.records))
	}
	if d.ScreenSizeX() != 240 || d.ScreenSizeY() != 416 {
		t.Errorf("size = %dx%d, want 240x416", d.ScreenSizeX(), d.ScreenSizeY())
	}
	d.SetOrientation(1)
	if d.ScreenSizeX() != 416 || d.ScreenSizeY() != 240 {
		t.Errorf("landscape size = %dx%d, want 416x240", d.ScreenSizeX(), d.ScreenSizeY())
	}
	if d.GetPixel(0, 0) != frame.White {
		t.Errorf("frame not cleared to white")
	}
}

func TestNewUnknownScreen(t *testing.T) {
	var tr fakeTransport
	d, err := New(0x01FF0C, &tr, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	d.SetPixel(0, 0, frame.Black)
	if d.GetPixel(0, 0) != frame.White {
		t.Errorf("inert driver stored a pixel")
	}
	if err := d.Flush(); err != nil {
		t.Errorf("Flush() = %v", err)
	}
	for _, r := range tr.records {
		if (r.index == 0x10 || r.index == 0x13) && len(r.data) != 0 {
			t.Errorf("index 0x%02X sent %d bytes, want 0", r.index, len(r.data))
		}
	}
}

func TestFlush(t *testing.T) {
	var tr fakeTransport
	d, err := New(screen.EPD271Fast, &tr, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.SetPixel(10, 20, frame.Black)
	want := append([]byte(nil), d.Buffer().Next()...)

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}

	wantIdx := []byte{0x00, 0xE5, 0xE0, 0x00, 0x50, 0x10, 0x13, 0x04, 0x12, 0x02}
	if diff := cmp.Diff(tr.indices(), wantIdx); diff != "" {
		t.Errorf("indices difference (-got +want):\n%s", diff)
	}
	if got := tr.records[1].data; !bytes.Equal(got, []byte{0x19 | 0x40}) {
		t.Errorf("0xE5 payload = %#v, want fast temperature", got)
	}
	if !bytes.Equal(d.Buffer().Previous(), want) {
		t.Errorf("previous plane not committed")
	}
	if d.GetPixel(10, 20) != frame.Black {
		t.Errorf("pixel lost after flush")
	}
}

func TestFlushModeChecker(t *testing.T) {
	for _, tc := range []struct {
		name    string
		checker ModeChecker
		mode    cog.UpdateMode
		want    cog.UpdateMode
		wantE5  byte
	}{
		{name: "no checker", mode: cog.Partial, want: cog.Partial, wantE5: 0x59},
		{name: "downgrade", checker: fixedChecker(cog.Global), mode: cog.Fast, want: cog.Global, wantE5: 0x19},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var tr fakeTransport
			d, err := New(screen.EPD271Fast, &tr, &Opts{Checker: tc.checker})
			if err != nil {
				t.Fatal(err)
			}
			got, err := d.FlushMode(tc.mode)
			if err != nil || got != tc.want {
				t.Fatalf("FlushMode(%v) = %v, %v; want %v", tc.mode, got, err, tc.want)
			}
			if e5 := tr.records[1]; e5.index != 0xE5 || e5.data[0] != tc.wantE5 {
				t.Errorf("0xE5 record = %+v, want payload 0x%02X", e5, tc.wantE5)
			}
		})
	}
}

func TestFlushModeNone(t *testing.T) {
	var tr fakeTransport
	d, err := New(screen.EPD271Fast, &tr, &Opts{Checker: fixedChecker(cog.None)})
	if err != nil {
		t.Fatal(err)
	}
	d.SetPixel(1, 1, frame.Black)

	got, err := d.FlushMode(cog.Fast)
	if err != nil || got != cog.None {
		t.Errorf("FlushMode() = %v, %v; want none, nil", got, err)
	}
	if len(tr.records) != 0 {
		t.Errorf("sent %d records, want none", len(tr.records))
	}
	if bytes.Equal(d.Buffer().Next(), d.Buffer().Previous()) {
		t.Errorf("frame committed without update")
	}
}

func TestFlushError(t *testing.T) {
	tr := fakeTransport{err: panel.ErrBusyTimeout}
	d, err := New(screen.EPD271Fast, &tr, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.FlushMode(cog.Fast)
	if !errors.Is(err, panel.ErrBusyTimeout) {
		t.Errorf("FlushMode() = %v, want ErrBusyTimeout", err)
	}
}

func TestRegenerate(t *testing.T) {
	var tr fakeTransport
	d, err := New(screen.EPD154Fast, &tr, &Opts{SettleDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	d.SetPixel(3, 3, frame.Black)

	used, err := d.Regenerate()
	if err != nil {
		t.Fatalf("Regenerate() = %v", err)
	}
	if used != cog.Fast {
		t.Errorf("Regenerate() mode = %v, want fast", used)
	}

	var nexts [][]byte
	for _, r := range tr.records {
		if r.index == 0x13 {
			nexts = append(nexts, r.data)
		}
	}
	if len(nexts) != 2 {
		t.Fatalf("got %d frames, want 2", len(nexts))
	}
	if nexts[0][0] != 0xFF || nexts[1][0] != 0x00 {
		t.Errorf("frames start with 0x%02X, 0x%02X; want black then white", nexts[0][0], nexts[1][0])
	}
	if d.GetPixel(3, 3) != frame.White {
		t.Errorf("frame not left white")
	}
}

func TestRegenerateDowngraded(t *testing.T) {
	var tr fakeTransport
	d, err := New(screen.EPD154Fast, &tr, &Opts{Checker: fixedChecker(cog.None), SettleDelay: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	used, err := d.Regenerate()
	if err != nil {
		t.Fatalf("Regenerate() = %v", err)
	}
	if used != cog.None {
		t.Errorf("Regenerate() mode = %v, want none", used)
	}
	if len(tr.records) != 0 {
		t.Errorf("sent %d commands, want none", len(tr.records))
	}
}
