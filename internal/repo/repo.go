// Package repo aggregates the per-source fetchers behind one query surface,
// holding the latest known list per source and seeding it from the snapshot
// cache at construction.
package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"contestbot/internal/cache"
	"contestbot/internal/contest"
	"contestbot/internal/source"
	"contestbot/pkg/logx"
)

// ErrNoData is the explicit "no data available" signal: every held list is
// empty and no source has succeeded since process start. It is distinct
// from a successful query that simply finds no contests today.
var ErrNoData = errors.New("contest data unavailable")

// Repository owns the in-memory contest lists. Fetch failures are absorbed
// here: queries always return the best data currently held.
type Repository struct {
	fetchers map[contest.Source]source.Fetcher
	store    cache.Store
	log      logx.Logger
	now      func() time.Time

	mu        sync.RWMutex
	held      map[contest.Source][]contest.Record
	succeeded bool
}

func New(fetchers []source.Fetcher, store cache.Store, log logx.Logger) *Repository {
	r := &Repository{
		fetchers: make(map[contest.Source]source.Fetcher, len(fetchers)),
		store:    store,
		log:      log.WithComp("repo"),
		now:      time.Now,
		held:     make(map[contest.Source][]contest.Record, len(fetchers)),
	}
	for _, f := range fetchers {
		r.fetchers[f.Source()] = f
	}

	if snap, ok := store.Load(); ok {
		n := 0
		for src, recs := range snap.BySource {
			r.held[src] = recs
			n += len(recs)
		}
		r.log.Info("seeded from cache snapshot",
			logx.Time("captured_at", snap.CapturedAt),
			logx.Int("contests", n))
	}
	return r
}

// RefreshAll fetches every source concurrently. A source's held list is
// replaced only on its own success; a failing source keeps whatever was
// held before. At least one success persists a fresh snapshot. The per
// source results let callers tell "degraded" from "fully fresh"; the
// refresh itself never fails as a whole.
func (r *Repository) RefreshAll(ctx context.Context, force bool) map[contest.Source]error {
	type result struct {
		src  contest.Source
		recs []contest.Record
		err  error
	}

	results := make(chan result, len(r.fetchers))
	var wg sync.WaitGroup
	for _, f := range r.fetchers {
		wg.Add(1)
		go func(f source.Fetcher) {
			defer wg.Done()
			recs, err := f.Fetch(ctx, force)
			results <- result{src: f.Source(), recs: recs, err: err}
		}(f)
	}
	wg.Wait()
	close(results)

	out := make(map[contest.Source]error, len(r.fetchers))
	anyOK := false
	for res := range results {
		out[res.src] = res.err
		if res.err != nil {
			r.log.Warn("source refresh failed",
				logx.String("source", res.src.String()),
				logx.Err(res.err))
			continue
		}
		anyOK = true
		r.mu.Lock()
		r.held[res.src] = res.recs
		r.succeeded = true
		r.mu.Unlock()
	}

	if anyOK {
		r.saveSnapshot()
	}
	return out
}

// Latest returns up to n soonest records held for src. An empty held list
// triggers a fetch of that source first; its failure degrades to an empty
// result rather than an error.
func (r *Repository) Latest(ctx context.Context, src contest.Source, n int) []contest.Record {
	f, ok := r.fetchers[src]
	if !ok {
		return nil
	}

	r.mu.RLock()
	held := r.held[src]
	r.mu.RUnlock()

	if len(held) == 0 {
		recs, err := f.Fetch(ctx, false)
		if err != nil {
			r.log.Warn("source fetch failed",
				logx.String("source", src.String()),
				logx.Err(err))
		} else {
			r.mu.Lock()
			r.held[src] = recs
			r.succeeded = true
			r.mu.Unlock()
			r.saveSnapshot()
			held = recs
		}
	}

	if n > 0 && len(held) > n {
		held = held[:n]
	}
	return held
}

// Today refreshes all sources, then returns the contests starting on the
// current calendar date grouped by source. The only possible error is
// ErrNoData.
func (r *Repository) Today(ctx context.Context) (map[contest.Source][]contest.Record, error) {
	r.RefreshAll(ctx, false)

	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	anyHeld := false
	out := make(map[contest.Source][]contest.Record)
	for _, src := range contest.Sources() {
		held := r.held[src]
		if len(held) > 0 {
			anyHeld = true
		}
		var todays []contest.Record
		for _, rec := range held {
			if rec.StartsOn(now) {
				todays = append(todays, rec)
			}
		}
		if len(todays) > 0 {
			out[src] = todays
		}
	}

	if !anyHeld && !r.succeeded {
		return nil, ErrNoData
	}
	return out, nil
}

// saveSnapshot persists the current held lists. Failures are logged and
// swallowed: memory stays authoritative for the rest of the process.
func (r *Repository) saveSnapshot() {
	r.mu.RLock()
	by := make(map[contest.Source][]contest.Record, len(r.held))
	for src, recs := range r.held {
		by[src] = recs
	}
	r.mu.RUnlock()

	if err := r.store.Save(by); err != nil {
		r.log.Warn("cache save failed", logx.Err(err))
	}
}
