package panel

import (
	"fmt"

	appLog "epdfast/internal/log"
	"epdfast/internal/screen"
)

// Discard is a transport without hardware. Every call succeeds; the traffic
// is summarized at debug level. It backs render-only runs.
type Discard struct {
	// Sent counts payload bytes accepted by SendIndexData.
	Sent int
}

func (d *Discard) Reset(t screen.ResetTiming) error {
	appLog.Debug("discard reset", "timing", fmt.Sprint(t))
	return nil
}

func (d *Discard) SendIndexData(index byte, data []byte) error {
	d.Sent += len(data)
	appLog.Debug("discard index", "index", fmt.Sprintf("0x%02X", index), "bytes", len(data))
	return nil
}

func (d *Discard) SendCommand8(code byte) error {
	appLog.Debug("discard command", "code", fmt.Sprintf("0x%02X", code))
	return nil
}

func (d *Discard) WaitBusy() error { return nil }

func (d *Discard) Close() error { return nil }
