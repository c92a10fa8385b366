// ABOUTME: Clock configuration
// ABOUTME: Defaults, TOML loading and validation for the clock process
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/pkg/clock"
	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
	"github.com/pelletier/go-toml/v2"
)

// Authority kinds.
const (
	AuthoritySystem = "system"
	AuthorityRemote = "remote"
	AuthorityMDNS   = "mdns"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("20ms", "67m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Chime configures the rollover chime.
type Chime struct {
	Enabled   bool     `toml:"enabled"`
	Precision int      `toml:"precision"`
	File      string   `toml:"file,omitempty"`
	Frequency float64  `toml:"frequency"`
	Length    Duration `toml:"length"`
	Volume    int      `toml:"volume"`
}

// Config holds everything the clock process reads at startup.
type Config struct {
	Precision      int      `toml:"precision"`
	PollInterval   Duration `toml:"poll_interval"`
	ResyncAfter    Duration `toml:"resync_after"`
	ResyncTimeout  Duration `toml:"resync_timeout"`
	Authority      string   `toml:"authority"`
	ServerAddress  string   `toml:"server_address,omitempty"`
	SyncSamples    int      `toml:"sync_samples"`
	Glyphs         string   `toml:"glyphs"`
	Timezone       string   `toml:"timezone,omitempty"`
	MetricsAddress string   `toml:"metrics_address,omitempty"`
	LogFile        string   `toml:"log_file,omitempty"`
	NoTUI          bool     `toml:"no_tui"`
	Debug          bool     `toml:"debug"`
	Chime          Chime    `toml:"chime"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Precision:     3,
		PollInterval:  Duration{20 * time.Millisecond},
		ResyncAfter:   Duration{clock.DefaultResyncAfter},
		ResyncTimeout: Duration{10 * time.Second},
		Authority:     AuthoritySystem,
		SyncSamples:   4,
		Glyphs:        "pitman",
		LogFile:       "dozclock.log",
		Chime: Chime{
			Precision: 1,
			Frequency: 880,
			Length:    Duration{300 * time.Millisecond},
			Volume:    80,
		},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and combinations.
func (c Config) Validate() error {
	if c.Precision < 0 || c.Precision > dozenal.MaxPrecision {
		return fmt.Errorf("%w: precision %d not in 0..%d", ErrInvalid, c.Precision, dozenal.MaxPrecision)
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.ResyncAfter.Duration < time.Second {
		return fmt.Errorf("%w: resync_after must be at least 1s", ErrInvalid)
	}
	if c.ResyncTimeout.Duration <= 0 {
		return fmt.Errorf("%w: resync_timeout must be positive", ErrInvalid)
	}
	switch c.Authority {
	case AuthoritySystem, AuthorityMDNS:
	case AuthorityRemote:
		if c.ServerAddress == "" {
			return fmt.Errorf("%w: authority %q needs server_address", ErrInvalid, c.Authority)
		}
	default:
		return fmt.Errorf("%w: unknown authority %q", ErrInvalid, c.Authority)
	}
	if c.SyncSamples < 1 {
		return fmt.Errorf("%w: sync_samples must be at least 1", ErrInvalid)
	}
	if _, err := dozenal.ParseGlyphs(c.Glyphs); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Chime.Enabled {
		if c.Chime.Precision < 1 || c.Chime.Precision > dozenal.MaxPrecision {
			return fmt.Errorf("%w: chime.precision %d not in 1..%d", ErrInvalid, c.Chime.Precision, dozenal.MaxPrecision)
		}
		if c.Chime.Volume < 0 || c.Chime.Volume > 100 {
			return fmt.Errorf("%w: chime.volume %d not in 0..100", ErrInvalid, c.Chime.Volume)
		}
		if c.Chime.File == "" && c.Chime.Frequency <= 0 {
			return fmt.Errorf("%w: chime needs a file or a positive frequency", ErrInvalid)
		}
	}
	return nil
}

// Location resolves Timezone, defaulting to the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
