// Package config loads the YAML process configuration: storage path,
// chat API credentials, loop cadence, and the per-series channel/role
// wiring.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridline/gridline/internal/model"
)

// SeriesEntry wires one series to its destination channel and mention
// role.
type SeriesEntry struct {
	// Series is one of F1, F2, F3, F1Academy.
	Series string `yaml:"series"`
	// Channel is the destination channel id.
	Channel string `yaml:"channel"`
	// Role is the role id mentioned in notifications.
	Role string `yaml:"role"`
}

// DiscordConfig holds the chat API settings.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// BaseURL overrides the API endpoint; empty means production.
	BaseURL string `yaml:"base_url,omitempty"`
	// Attachment is an optional file posted with every notification.
	Attachment string `yaml:"attachment,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// PollInterval is the per-iteration sleep, e.g. "5s".
	PollInterval string `yaml:"poll_interval"`

	// CalendarRefresh is the schedule-board reconciliation period,
	// e.g. "5m".
	CalendarRefresh string `yaml:"calendar_refresh"`

	Discord DiscordConfig `yaml:"discord"`

	Series []SeriesEntry `yaml:"series"`
}

// Normalize fills in missing values with defaults so partially filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Database == "" {
		c.Database = "gridline.db"
	}
	if c.PollInterval == "" {
		c.PollInterval = "5s"
	}
	if c.CalendarRefresh == "" {
		c.CalendarRefresh = "5m"
	}
}

// Validate checks everything the supervisor needs before it starts.
// Failures here are fatal: the process must not start its loops on a
// broken configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if len(c.Series) == 0 {
		errs = append(errs, errors.New("at least one series entry is required"))
	}
	if _, err := c.PollIntervalDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CalendarRefreshDuration(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[model.Series]bool, len(c.Series))
	for i, e := range c.Series {
		series := model.ParseSeries(e.Series)
		if series == model.SeriesUnsupported {
			errs = append(errs, fmt.Errorf("series[%d]: unknown series %q", i, e.Series))
			continue
		}
		if seen[series] {
			errs = append(errs, fmt.Errorf("series[%d]: duplicate series %q", i, e.Series))
		}
		seen[series] = true
		if e.Channel == "" {
			errs = append(errs, fmt.Errorf("series[%d] (%s): channel is required", i, e.Series))
		}
		if e.Role == "" {
			errs = append(errs, fmt.Errorf("series[%d] (%s): role is required", i, e.Series))
		}
	}
	return errors.Join(errs...)
}

// PollIntervalDuration parses the poll interval.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid poll_interval %q", c.PollInterval)
	}
	return d, nil
}

// CalendarRefreshDuration parses the calendar refresh period.
func (c *Config) CalendarRefreshDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.CalendarRefresh)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid calendar_refresh %q", c.CalendarRefresh)
	}
	return d, nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
