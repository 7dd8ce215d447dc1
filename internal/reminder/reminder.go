// Package reminder runs the daily dispatch loop: sleep until the configured
// wall-clock time, collect today's contests, and send the rendered message
// to every subscriber.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contestbot/internal/config"
	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

// ConfigProvider supplies the current schedule. The loop re-reads it at the
// top of every iteration, so external edits take effect on the next cycle
// without a restart (an already-sleeping wait needs Restart to re-arm).
type ConfigProvider interface {
	Schedule() config.Schedule
}

// ContestSource yields today's contests grouped by provider.
type ContestSource interface {
	Today(ctx context.Context) (map[contest.Source][]contest.Record, error)
}

// Sink delivers one rendered message to one destination chat. Failures are
// non-fatal to the dispatch.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// RenderFunc turns a Today result (or its error) into the message text sent
// to every subscriber.
type RenderFunc func(bySource map[contest.Source][]contest.Record, err error) string

type Options struct {
	Schedule ConfigProvider
	Contests ContestSource
	Sink     Sink
	Render   RenderFunc
	Log      logx.Logger
}

type state int

const (
	stateStopped state = iota
	stateRunning
	stateStopping
)

// Service owns the reminder loop. It is either Stopped or Running; Start
// and Stop drive the transitions and are safe to call from any goroutine.
type Service struct {
	cfg    ConfigProvider
	src    ContestSource
	sink   Sink
	render RenderFunc
	log    logx.Logger

	sendDelay  time.Duration // pause after each successful send
	errBackoff time.Duration // wait after misconfiguration or a failed dispatch
	now        func() time.Time

	mu     sync.Mutex
	state  state
	stopCh chan struct{}
	done   chan struct{}
}

func New(opt Options) *Service {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        opt.Schedule,
		src:        opt.Contests,
		sink:       opt.Sink,
		render:     opt.Render,
		log:        log.WithComp("reminder"),
		sendDelay:  500 * time.Millisecond,
		errBackoff: time.Hour,
		now:        time.Now,
	}
}

// Running reports whether the loop is currently active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Start spawns the loop. Starting a running service is a no-op.
func (s *Service) Start() {
	for {
		s.mu.Lock()
		switch s.state {
		case stateRunning:
			s.mu.Unlock()
			return
		case stateStopping:
			// Wait out the stop in progress, then try again.
			done := s.done
			s.mu.Unlock()
			<-done
			continue
		}
		s.stopCh = make(chan struct{})
		s.done = make(chan struct{})
		s.state = stateRunning
		stopCh, done := s.stopCh, s.done
		s.mu.Unlock()

		go s.loop(stopCh, done)
		s.log.Info("reminder loop started")
		return
	}
}

// Stop signals the loop and blocks until it has exited: once Stop returns,
// no dispatch can begin. Stopping a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	switch s.state {
	case stateStopped:
		s.mu.Unlock()
		return
	case stateStopping:
		done := s.done
		s.mu.Unlock()
		<-done
		return
	}
	s.state = stateStopping
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stopCh)
	<-done

	s.mu.Lock()
	s.state = stateStopped
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()
	s.log.Info("reminder loop stopped")
}

// Restart stops the loop, then starts it again only if the schedule is
// currently enabled.
func (s *Service) Restart() {
	s.Stop()
	if s.cfg.Schedule().Enabled {
		s.Start()
	}
}

func (s *Service) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx := context.Background()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		sch := s.cfg.Schedule()
		if !validFireTime(sch.Hour, sch.Minute) {
			s.log.Error("invalid reminder time",
				logx.Int("hour", sch.Hour),
				logx.Int("minute", sch.Minute))
			if !s.pause(stopCh, s.errBackoff) {
				return
			}
			continue
		}

		target := nextFireTime(s.now(), sch.Hour, sch.Minute)
		s.log.Info("next reminder scheduled",
			logx.Time("at", target),
			logx.Duration("in", target.Sub(s.now())))
		if !s.pause(stopCh, target.Sub(s.now())) {
			return
		}

		if err := s.dispatch(ctx); err != nil {
			s.log.Error("dispatch failed", logx.Err(err))
			if !s.pause(stopCh, s.errBackoff) {
				return
			}
		}
	}
}

// pause sleeps for d, returning false when the stop signal interrupts it.
func (s *Service) pause(stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stopCh:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}

// dispatch runs to completion once started; the stop signal only prevents
// dispatches that have not yet begun.
func (s *Service) dispatch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
			s.log.Error("panic in dispatch",
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)))
		}
	}()

	bySource, qerr := s.src.Today(ctx)
	text := s.render(bySource, qerr)

	subs := s.cfg.Schedule().Subscribers
	if len(subs) == 0 {
		s.log.Warn("no reminder subscribers configured")
		return nil
	}

	sent := 0
	for _, chatID := range subs {
		if err := s.sink.Send(ctx, chatID, text); err != nil {
			s.log.Error("reminder send failed",
				logx.Int64("chat", chatID),
				logx.Err(err))
			continue
		}
		sent++
		time.Sleep(s.sendDelay)
	}
	s.log.Info("reminder dispatched",
		logx.Int("sent", sent),
		logx.Int("subscribers", len(subs)))
	return nil
}

func validFireTime(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// nextFireTime is today at hour:minute in now's zone, or the same time
// tomorrow when that moment is not strictly in the future.
func nextFireTime(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target
}
