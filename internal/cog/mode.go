package cog

import (
	"fmt"
	"strings"
)

// UpdateMode selects the waveform variant of an update.
type UpdateMode uint8

const (
	Fast UpdateMode = iota
	Partial
	Global
	None
)

func (m UpdateMode) String() string {
	switch m {
	case Fast:
		return "fast"
	case Partial:
		return "partial"
	case Global:
		return "global"
	case None:
		return "none"
	default:
		return fmt.Sprintf("UpdateMode(%d)", uint8(m))
	}
}

// ParseUpdateMode is the inverse of String. An empty string means Fast.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fast":
		return Fast, nil
	case "partial":
		return Partial, nil
	case "global":
		return Global, nil
	case "none":
		return None, nil
	}
	return None, fmt.Errorf("cog: unknown update mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m UpdateMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *UpdateMode) UnmarshalText(b []byte) error {
	v, err := ParseUpdateMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
