package robot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "armseq.yaml"

// EnvPrefix is the prefix of environment variables that override the config file.
const EnvPrefix = "ARMSEQ_"

// Config holds the controller configuration
type Config struct {
	Control   ControlConfig   `koanf:"control"`
	Transport TransportConfig `koanf:"transport"`
	Servo     ServoConfig     `koanf:"servo"`
	HTTP      HTTPConfig      `koanf:"http"`
	Journal   JournalConfig   `koanf:"journal"`
	Log       LogConfig       `koanf:"log"`
}

// ControlConfig holds the control loop and command gain settings.
type ControlConfig struct {
	Tick         time.Duration `koanf:"tick"`
	ReleaseSteps int           `koanf:"release_steps"`
	Kp           float64       `koanf:"kp"`
	Kd           float64       `koanf:"kd"`
	Tau          float64       `koanf:"tau"`
	WeightSlot   bool          `koanf:"weight_slot"` // also carry authority in motor slot 9
}

// TransportConfig holds message bus settings.
type TransportConfig struct {
	CommandSubject string        `koanf:"command_subject"`
	StateSubject   string        `koanf:"state_subject"`
	StateTimeout   time.Duration `koanf:"state_timeout"`
	ClientName     string        `koanf:"client_name"`
}

// ServoConfig holds servo bench settings.
type ServoConfig struct {
	Calibration string `koanf:"calibration"`
	BaudRate    int    `koanf:"baud_rate"`
}

// HTTPConfig holds the control API listen address. Empty disables the API.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// JournalConfig holds the run journal database path. Empty disables the journal.
type JournalConfig struct {
	Path string `koanf:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File receives the log while the live chart owns the terminal.
	File string `koanf:"file"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Control: ControlConfig{
			Tick:         time.Millisecond,
			ReleaseSteps: 400,
			Kp:           60,
			Kd:           1.5,
		},
		Transport: TransportConfig{
			CommandSubject: "rt.arm_sdk",
			StateSubject:   "rt.lowstate",
			StateTimeout:   2 * time.Second,
			ClientName:     "armseq",
		},
		Servo: ServoConfig{
			Calibration: "calibration.json",
			BaudRate:    DefaultBaudRate,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfigFrom loads configuration from a YAML file, then applies ARMSEQ_
// environment overrides on top. A missing file is not an error.
//
//	ARMSEQ_CONTROL_TICK=2ms        -> control.tick
//	ARMSEQ_TRANSPORT_STATE_SUBJECT -> transport.state_subject
func LoadConfigFrom(path string) (*Config, error) {
	k := koanf.New(".")

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ARMSEQ_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Validate checks values the control loop cannot run with.
func (c *Config) Validate() error {
	if c.Control.Tick <= 0 {
		return fmt.Errorf("control.tick must be positive, got %s", c.Control.Tick)
	}
	if c.Control.ReleaseSteps < 1 {
		return fmt.Errorf("control.release_steps must be at least 1, got %d", c.Control.ReleaseSteps)
	}
	if c.Transport.StateTimeout <= 0 {
		return fmt.Errorf("transport.state_timeout must be positive, got %s", c.Transport.StateTimeout)
	}
	return nil
}

// ConfigExists reports whether a config file exists at path.
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
