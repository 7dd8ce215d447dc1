package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"contestbot/pkg/logx"
)

// Store owns the process view of the config file. Reads return snapshots;
// mutators persist to disk first and commit to memory only when the write
// succeeds, so a failed save leaves the running config untouched.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list and ensures we never send on a
	// channel that is concurrently being closed in Unsubscribe.
	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger

	// lastHash tracks the last committed content. Watcher-triggered reloads
	// of unchanged files (including our own saves) are skipped by comparing
	// against it.
	lastHash uint64
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) SetLogger(log logx.Logger) { s.log = log.WithComp("config") }

func (s *Store) Path() string { return s.path }

// Parse reads and strictly decodes the file without committing it. Decoding
// starts from Default(), so omitted fields keep their default values and
// unknown keys are rejected.
func (s *Store) Parse() (*Config, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(s.path, b)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return cfg, nil
}

// Load parses, validates and commits the file. Callers should treat an
// os.ErrNotExist as "first run" and offer to write a template.
func (s *Store) Load() (*Config, error) {
	cfg, err := s.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.commit(cfg)
	return cfg, nil
}

func (s *Store) commit(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.lastHash = hashConfig(cfg)
	s.mu.Unlock()
}

// Get returns the committed config. Callers must not mutate it.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Schedule returns a copy of the reminder section that is safe to retain.
func (s *Store) Schedule() Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return Default().Reminder
	}
	sch := s.cfg.Reminder
	sch.Subscribers = append([]int64(nil), sch.Subscribers...)
	return sch
}

// SetEnabled flips the reminder switch and persists the result.
func (s *Store) SetEnabled(v bool) error {
	_, err := s.mutate(func(c *Config) error {
		c.Reminder.Enabled = v
		return nil
	})
	return err
}

// SetFireTime sets the daily reminder time. Out-of-range values are rejected
// with ErrBadFireTime before anything is persisted.
func (s *Store) SetFireTime(hour, minute int) error {
	if !ValidFireTime(hour, minute) {
		return fmt.Errorf("%w: %02d:%02d", ErrBadFireTime, hour, minute)
	}
	_, err := s.mutate(func(c *Config) error {
		c.Reminder.Hour = hour
		c.Reminder.Minute = minute
		return nil
	})
	return err
}

// AddSubscriber registers a destination chat. The bool is false when the
// chat was already subscribed.
func (s *Store) AddSubscriber(chatID int64) (bool, error) {
	return s.mutate(func(c *Config) error {
		for _, id := range c.Reminder.Subscribers {
			if id == chatID {
				return errNoChange
			}
		}
		c.Reminder.Subscribers = append(c.Reminder.Subscribers, chatID)
		return nil
	})
}

// RemoveSubscriber drops a destination chat. The bool is false when the chat
// was not subscribed.
func (s *Store) RemoveSubscriber(chatID int64) (bool, error) {
	return s.mutate(func(c *Config) error {
		for i, id := range c.Reminder.Subscribers {
			if id == chatID {
				c.Reminder.Subscribers = append(c.Reminder.Subscribers[:i], c.Reminder.Subscribers[i+1:]...)
				return nil
			}
		}
		return errNoChange
	})
}

var errNoChange = errors.New("no change")

// mutate clones the committed config, applies fn, persists the clone and
// commits it. fn returning errNoChange reports changed=false without
// touching the file.
func (s *Store) mutate(fn func(*Config) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return false, errors.New("config not loaded")
	}
	next := s.cfg.clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return false, nil
		}
		return false, err
	}
	if err := s.write(next); err != nil {
		return false, err
	}
	s.cfg = next
	s.lastHash = hashConfig(next)
	return true, nil
}

// write persists cfg via write-then-replace so a crash mid-write never
// clobbers the previous file. 0600 because the file holds the bot token.
func (s *Store) write(cfg *Config) error {
	b, err := encodeForPath(s.path, cfg)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Subscribe returns a channel that receives the new config after every
// committed external reload.
func (s *Store) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			last := len(s.subs) - 1
			s.subs[i] = s.subs[last]
			s.subs[last] = nil
			s.subs = s.subs[:last]
			close(ch)
			return
		}
	}
}

func (s *Store) publish(cfg *Config) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		// Deliver the latest config; when the subscriber is behind, drop one
		// stale item and retry once.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				if !s.log.IsZero() {
					s.log.Debug("config update dropped (subscriber slow)",
						logx.Int("queue_len", len(ch)),
						logx.Int("queue_cap", cap(ch)))
				}
			}
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
