// Package source implements the per-provider contest fetchers.
//
// Every fetcher follows the same contract: Fetch(ctx, force) returns the
// provider's upcoming contests ascending by start time. With force=false a
// non-empty result from an earlier successful fetch in this process is
// returned without touching the network; otherwise the fetcher performs up
// to three attempts with exponential backoff. A fetch that parses cleanly
// but yields zero contests is a success, not an error.
package source

import (
	"context"
	"net/http"
	"sync"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

// Fetcher retrieves one provider's upcoming contests.
type Fetcher interface {
	Source() contest.Source
	Fetch(ctx context.Context, force bool) ([]contest.Record, error)
}

// userAgent pins a desktop browser UA for endpoints that reject default
// client strings.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Options tune a fetcher. The zero value selects the provider's real
// endpoint and a client with the provider's timeout; tests point BaseURL at
// a local server.
type Options struct {
	BaseURL string
	Client  *http.Client
	Log     logx.Logger
}

// memo holds the last successful non-empty result for the process lifetime.
type memo struct {
	mu   sync.Mutex
	recs []contest.Record
}

func (m *memo) get() []contest.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs
}

func (m *memo) set(recs []contest.Record) {
	m.mu.Lock()
	m.recs = recs
	m.mu.Unlock()
}
