//go:build sqlite
// +build sqlite

package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("cache.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load() (Snapshot, bool) {
	var capturedAt int64
	err := s.db.QueryRow(`SELECT captured_at FROM snapshot_meta WHERE id = 1`).Scan(&capturedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("cache snapshot unreadable", logx.Err(err))
		}
		return Snapshot{}, false
	}

	at := time.Unix(capturedAt, 0)
	if age := s.now().Sub(at); age >= TTL {
		s.log.Info("cache snapshot stale", logx.Duration("age", age))
		return Snapshot{}, false
	}

	rows, err := s.db.Query(`SELECT source, name, starts_at, url FROM snapshot_contests ORDER BY source, pos`)
	if err != nil {
		s.log.Warn("cache snapshot unreadable", logx.Err(err))
		return Snapshot{}, false
	}
	defer rows.Close()

	by := make(map[contest.Source][]contest.Record, 3)
	for rows.Next() {
		var (
			src      string
			name     string
			startsAt int64
			url      string
		)
		if err := rows.Scan(&src, &name, &startsAt, &url); err != nil {
			s.log.Warn("cache snapshot invalid", logx.Err(err))
			return Snapshot{}, false
		}
		source := contest.Source(src)
		if !source.Valid() {
			s.log.Warn("cache snapshot invalid", logx.String("source", src))
			return Snapshot{}, false
		}
		by[source] = append(by[source], contest.Record{
			Name:     name,
			StartsAt: time.Unix(startsAt, 0).In(time.Local),
			URL:      url,
			Source:   source,
		})
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("cache snapshot unreadable", logx.Err(err))
		return Snapshot{}, false
	}

	return Snapshot{CapturedAt: at, BySource: by}, true
}

func (s *sqliteStore) Save(bySource map[contest.Source][]contest.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshot_contests`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO snapshot_meta(id, captured_at) VALUES(1, ?)
		 ON CONFLICT(id) DO UPDATE SET captured_at=excluded.captured_at`,
		s.now().Unix(),
	); err != nil {
		return err
	}
	for _, src := range contest.Sources() {
		for pos, rec := range bySource[src] {
			if _, err := tx.Exec(
				`INSERT INTO snapshot_contests(source, pos, name, starts_at, url) VALUES(?,?,?,?,?)`,
				src.String(), pos, rec.Name, rec.StartsAt.Unix(), rec.URL,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
