package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"epdfast/internal/cog"
	appLog "epdfast/internal/log"
	"epdfast/internal/screen"
)

// PinsConfig names the board GPIOs as understood by periph's gpioreg
// (e.g. "GPIO25" or "P1_22").
type PinsConfig struct {
	DC    string `yaml:"dc" json:"dc"`
	CS    string `yaml:"cs" json:"cs"`
	Reset string `yaml:"reset" json:"reset"`
	Busy  string `yaml:"busy" json:"busy"`
	// FlashCS is the optional chip select of the board flash; it is held
	// high so the flash never answers on the shared bus.
	FlashCS string `yaml:"flash_cs,omitempty" json:"flash_cs,omitempty"`
}

// PanelConfig describes the link to the panel controller.
type PanelConfig struct {
	// SPIPort is the spireg name; empty selects the first port.
	SPIPort string     `yaml:"spi_port" json:"spi_port"`
	SPIHz   int64      `yaml:"spi_hz" json:"spi_hz"`
	Pins    PinsConfig `yaml:"pins" json:"pins"`

	// BusyTimeout bounds every wait on the busy line.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	// BusyPoll is the sleep between two reads of the busy line.
	BusyPoll time.Duration `yaml:"busy_poll" json:"busy_poll"`
}

// TemperatureConfig selects where the ambient temperature used to validate
// the update mode comes from. Source is "fixed" or "i2c". Celsius is the
// fixed reading; nil selects 25 °C while an explicit 0 is kept.
type TemperatureConfig struct {
	Source  string   `yaml:"source" json:"source"`
	Celsius *float64 `yaml:"celsius,omitempty" json:"celsius,omitempty"`
	I2CBus  string   `yaml:"i2c_bus,omitempty" json:"i2c_bus,omitempty"`
	I2CAddr uint16   `yaml:"i2c_addr,omitempty" json:"i2c_addr,omitempty"`
}

// FixedCelsius returns the fixed reading, defaulting to 25 °C.
func (t TemperatureConfig) FixedCelsius() float64 {
	if t.Celsius == nil {
		return defaultCelsius
	}
	return *t.Celsius
}

// SourceConfig is what the daemon draws on each scheduled redraw. The first
// non-empty field wins: URL, then Image, then Text.
type SourceConfig struct {
	URL   string `yaml:"url,omitempty" json:"url,omitempty"`
	Image string `yaml:"image,omitempty" json:"image,omitempty"`
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Screen is a screen name ("271-fast") or a hex code ("0x012709").
	Screen      string `yaml:"screen" json:"screen"`
	Orientation int    `yaml:"orientation" json:"orientation"`
	Invert      bool   `yaml:"invert" json:"invert"`
	// Mode is the default update mode: fast, partial or global.
	Mode string `yaml:"mode" json:"mode"`

	Panel       PanelConfig       `yaml:"panel" json:"panel"`
	Temperature TemperatureConfig `yaml:"temperature" json:"temperature"`
	Source      SourceConfig      `yaml:"source" json:"source"`

	// Regenerate is the cron schedule of the black/white ghost-reduction
	// cycle. Empty disables it.
	Regenerate string `yaml:"regenerate" json:"regenerate"`
	// Refresh is the cron schedule for redrawing Source. Empty disables it.
	Refresh string `yaml:"refresh" json:"refresh"`
	// SettleDelay is the pause after each regenerate flush.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`

	// Listen is the HTTP listen address of the control API. Empty disables it.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

const (
	defaultScreen      = "271-fast"
	defaultSPIHz       = 4_000_000
	defaultBusyTimeout = 30 * time.Second
	defaultBusyPoll    = 10 * time.Millisecond
	defaultCelsius     = 25
	defaultSettleDelay = 100 * time.Millisecond
	defaultRegenerate  = "0 3 * * *"
	defaultListen      = "127.0.0.1:8080"
)

var defaultPins = PinsConfig{
	DC:    "GPIO25",
	CS:    "GPIO8",
	Reset: "GPIO17",
	Busy:  "GPIO24",
}

func celsius(v float64) *float64 { return &v }

// DefaultConfig returns an in-memory default configuration for an EXT3-1
// board wired to a Raspberry Pi.
func DefaultConfig() *Config {
	return &Config{
		Screen: defaultScreen,
		Mode:   cog.Fast.String(),
		Panel: PanelConfig{
			SPIHz:       defaultSPIHz,
			Pins:        defaultPins,
			BusyTimeout: defaultBusyTimeout,
			BusyPoll:    defaultBusyPoll,
		},
		Temperature: TemperatureConfig{
			Source:  "fixed",
			Celsius: celsius(defaultCelsius),
		},
		Regenerate:  defaultRegenerate,
		SettleDelay: defaultSettleDelay,
		Listen:      defaultListen,
		LogLevel:    "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave.
func (c *Config) Normalize() {
	if c.Screen == "" {
		c.Screen = defaultScreen
	}
	if c.Mode == "" {
		c.Mode = cog.Fast.String()
	}
	if c.Panel.SPIHz <= 0 {
		c.Panel.SPIHz = defaultSPIHz
	}
	if c.Panel.Pins.DC == "" {
		c.Panel.Pins.DC = defaultPins.DC
	}
	if c.Panel.Pins.CS == "" {
		c.Panel.Pins.CS = defaultPins.CS
	}
	if c.Panel.Pins.Reset == "" {
		c.Panel.Pins.Reset = defaultPins.Reset
	}
	if c.Panel.Pins.Busy == "" {
		c.Panel.Pins.Busy = defaultPins.Busy
	}
	if c.Panel.BusyTimeout <= 0 {
		c.Panel.BusyTimeout = defaultBusyTimeout
	}
	if c.Panel.BusyPoll <= 0 {
		c.Panel.BusyPoll = defaultBusyPoll
	}
	switch c.Temperature.Source {
	case "fixed", "i2c":
	default:
		c.Temperature.Source = "fixed"
	}
	if c.Temperature.Source == "fixed" && c.Temperature.Celsius == nil {
		c.Temperature.Celsius = celsius(defaultCelsius)
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fields that are parsed later on.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.ScreenCode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.UpdateMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Orientation < 0 || c.Orientation > 3 {
		errs = append(errs, fmt.Errorf("config: orientation %d out of range 0..3", c.Orientation))
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ScreenCode parses Screen.
func (c *Config) ScreenCode() (screen.Code, error) {
	return screen.ParseCode(c.Screen)
}

// UpdateMode parses Mode.
func (c *Config) UpdateMode() (cog.UpdateMode, error) {
	return cog.ParseUpdateMode(c.Mode)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdfast-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
