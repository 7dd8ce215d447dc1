// Package cache persists the last known contest snapshot across restarts.
//
// A snapshot is written whole on every successful fetch of any source and
// read back once at process start. A snapshot at least TTL old is treated
// as absent.
package cache

import (
	"errors"
	"strings"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

// TTL is the staleness window. Load treats anything older as absent.
const TTL = time.Hour

// Snapshot is a whole-system capture of all sources' contest lists.
type Snapshot struct {
	CapturedAt time.Time
	BySource   map[contest.Source][]contest.Record
}

// Config selects and locates the snapshot store.
//
// Driver values:
//   - "file": single JSON document, replaced atomically (default)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// An empty Driver or "none" disables persistence (cold start every boot).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists snapshots.
//
// Load returns ok=false whenever nothing usable is persisted: missing file,
// unreadable or structurally invalid content, or a stale CapturedAt. It
// never surfaces an error to the caller; failures degrade to a cold start.
type Store interface {
	Load() (Snapshot, bool)
	Save(bySource map[contest.Source][]contest.Record) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none":
		return noopStore{}, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown cache driver: " + driver)
	}
}

type noopStore struct{}

func (noopStore) Load() (Snapshot, bool)                             { return Snapshot{}, false }
func (noopStore) Save(map[contest.Source][]contest.Record) error     { return nil }
func (noopStore) Close() error                                       { return nil }
