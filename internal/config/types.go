package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadFireTime marks a reminder time outside 00:00..23:59.
var ErrBadFireTime = errors.New("fire time out of range")

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// DataDir holds runtime state such as the contest cache.
	DataDir string `json:"data_dir,omitempty"`

	Cache    CacheConfig   `json:"cache,omitempty"`
	Refresh  RefreshConfig `json:"refresh,omitempty"`
	Reminder Schedule      `json:"reminder"`
}

type TelegramConfig struct {
	Token    string  `json:"token"`
	OwnerIDs []int64 `json:"owner_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`  // trace|debug|info|warn|error
	Format  string      `json:"format,omitempty"` // console|json
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// CacheConfig selects the contest snapshot store.
//
// Driver is one of "", "none", "file", "sqlite". An empty Path defaults to
// a file under DataDir.
type CacheConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RefreshConfig controls the background cache-warm job. Spec is a cron
// expression ("@hourly", "*/30 * * * *"); empty disables the job.
type RefreshConfig struct {
	Spec string `json:"spec,omitempty"`
}

// Schedule is the reminder schedule as stored in the config file. Subscribers
// are Telegram chat IDs.
type Schedule struct {
	Enabled     bool    `json:"enabled"`
	Hour        int     `json:"hour"`
	Minute      int     `json:"minute"`
	Subscribers []int64 `json:"subscribers,omitempty"`
}

// ValidFireTime reports whether hour:minute names a real wall-clock minute.
func ValidFireTime(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// Default returns the configuration the decoder starts from; fields present
// in the file overwrite it, omitted ones keep these values. The reminder
// ships disabled at 08:30 so enabling it is an explicit act.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console", Console: true},
		DataDir: "data",
		Cache:   CacheConfig{Driver: "file"},
		Refresh: RefreshConfig{Spec: "@hourly"},
		Reminder: Schedule{
			Enabled: false,
			Hour:    8,
			Minute:  30,
		},
	}
}

// Validate rejects configurations the process cannot start with. Reminder
// hour and minute are deliberately not checked here: the scheduler handles
// out-of-range values at runtime so a bad edit cannot kill the loop.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	switch strings.TrimSpace(c.Cache.Driver) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("cache.driver: unknown driver %q", c.Cache.Driver)
	}
	if _, err := ParseDurationField("cache.busy_timeout", c.Cache.BusyTimeout); err != nil {
		return err
	}
	return nil
}

// clone is a deep copy; mutators work on the copy so a failed persist leaves
// the committed config untouched.
func (c *Config) clone() *Config {
	cp := *c
	if c.Telegram.OwnerIDs != nil {
		cp.Telegram.OwnerIDs = append([]int64(nil), c.Telegram.OwnerIDs...)
	}
	if c.Reminder.Subscribers != nil {
		cp.Reminder.Subscribers = append([]int64(nil), c.Reminder.Subscribers...)
	}
	return &cp
}

// Duration fields are strings ("10s", "2m") so the YAML and JSON forms of
// the file share one syntax.

// ParseDurationField parses the duration field at path. Empty means unset
// and parses to zero; negatives are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for an
// unset field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
