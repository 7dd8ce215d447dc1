package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"contestbot/pkg/logx"
)

const (
	debounceDelay      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch reloads the config file on external edits and publishes committed
// changes to subscribers. Invalid or unchanged content is logged and
// ignored, keeping the last good config. The watcher is recreated with
// backoff when it breaks, and the call returns when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	// Debounce collapses the multiple events editors emit per save, and
	// gives atomic write-then-rename writers time to finish.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() { s.reload() })
	}

	backoff := restartBackoffBase
	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		return true
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			s.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		s.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		// Inner loop runs until the watcher breaks; the outer loop then
		// recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Match by basename: editors replace files via renames, so
				// the event path may be the temp name's directory sibling.
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				s.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir), logx.Duration("backoff", backoff))
		if !wait() {
			return nil
		}
	}
}

// reload parses the file and commits + publishes it when it is valid and
// actually different from the committed content.
func (s *Store) reload() {
	cfg, err := s.Parse()
	if err != nil {
		s.log.Warn("config reload parse failed", logx.String("path", s.path), logx.Err(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		s.log.Warn("config rejected, keeping previous", logx.String("path", s.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	s.mu.RLock()
	unchanged := h != 0 && h == s.lastHash
	s.mu.RUnlock()
	if unchanged {
		s.log.Debug("config unchanged, skipping publish", logx.String("path", s.path))
		return
	}

	s.commit(cfg)
	s.publish(cfg)
	s.log.Info("config reloaded", logx.String("path", s.path))
}
