package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

// fileStore persists one JSON document, replaced atomically on save:
//
//	{"timestamp": <unix seconds>,
//	 "cf":  [[name, "YYYY-MM-DD HH:MM", url], ...],
//	 "nc":  [...],
//	 "atc": [...]}
//
// Start times are minute-precision strings in the local zone, keeping the
// file readable and compatible with snapshots written by earlier tooling.
type fileStore struct {
	log  logx.Logger
	path string

	mu  sync.Mutex
	now func() time.Time
}

type fileDoc struct {
	Timestamp float64     `json:"timestamp"`
	CF        [][3]string `json:"cf"`
	NC        [][3]string `json:"nc"`
	ATC       [][3]string `json:"atc"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("cache.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, now: time.Now}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("cache snapshot unreadable", logx.Err(err))
		}
		return Snapshot{}, false
	}

	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn("cache snapshot malformed", logx.Err(err))
		return Snapshot{}, false
	}

	capturedAt := time.Unix(int64(doc.Timestamp), 0)
	if age := s.now().Sub(capturedAt); age >= TTL {
		s.log.Info("cache snapshot stale", logx.Duration("age", age))
		return Snapshot{}, false
	}

	by := make(map[contest.Source][]contest.Record, 3)
	for src, triples := range map[contest.Source][][3]string{
		contest.Codeforces: doc.CF,
		contest.Nowcoder:   doc.NC,
		contest.AtCoder:    doc.ATC,
	} {
		recs, err := decodeTriples(src, triples)
		if err != nil {
			s.log.Warn("cache snapshot invalid", logx.String("source", src.String()), logx.Err(err))
			return Snapshot{}, false
		}
		if len(recs) > 0 {
			by[src] = recs
		}
	}

	return Snapshot{CapturedAt: capturedAt, BySource: by}, true
}

func (s *fileStore) Save(bySource map[contest.Source][]contest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := fileDoc{
		Timestamp: float64(s.now().Unix()),
		CF:        encodeTriples(bySource[contest.Codeforces]),
		NC:        encodeTriples(bySource[contest.Nowcoder]),
		ATC:       encodeTriples(bySource[contest.AtCoder]),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-replace: a crash mid-write never clobbers the last good
	// snapshot.
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

func encodeTriples(recs []contest.Record) [][3]string {
	out := make([][3]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, [3]string{r.Name, r.StartsAt.Format(contest.TimeLayout), r.URL})
	}
	return out
}

func decodeTriples(src contest.Source, triples [][3]string) ([]contest.Record, error) {
	if len(triples) == 0 {
		return nil, nil
	}
	recs := make([]contest.Record, 0, len(triples))
	for _, tr := range triples {
		at, err := time.ParseInLocation(contest.TimeLayout, tr[1], time.Local)
		if err != nil {
			return nil, err
		}
		recs = append(recs, contest.Record{
			Name:     tr[0],
			StartsAt: at,
			URL:      tr[2],
			Source:   src,
		})
	}
	return recs, nil
}
