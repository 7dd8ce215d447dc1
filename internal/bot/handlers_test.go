package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"contestbot/internal/config"
	"contestbot/internal/contest"
	kit "contestbot/internal/transport"
	"contestbot/pkg/logx"
)

type fakeContests struct {
	mu       sync.Mutex
	lastSrc  contest.Source
	lastN    int
	latest   []contest.Record
	bySource map[contest.Source][]contest.Record
	todayErr error
}

func (f *fakeContests) Latest(_ context.Context, src contest.Source, n int) []contest.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSrc, f.lastN = src, n
	return f.latest
}

func (f *fakeContests) Today(context.Context) (map[contest.Source][]contest.Record, error) {
	return f.bySource, f.todayErr
}

type fakeStore struct {
	mu          sync.Mutex
	sch         config.Schedule
	addOK       bool
	removeOK    bool
	failWith    error
	setHour     int
	setMinute   int
	setFireErr  error
	enabledSets []bool
}

func (f *fakeStore) Schedule() config.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sch
}

func (f *fakeStore) SetEnabled(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sch.Enabled = v
	f.enabledSets = append(f.enabledSets, v)
	return nil
}

func (f *fakeStore) SetFireTime(hour, minute int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setFireErr != nil {
		return f.setFireErr
	}
	f.setHour, f.setMinute = hour, minute
	f.sch.Hour, f.sch.Minute = hour, minute
	return nil
}

func (f *fakeStore) AddSubscriber(int64) (bool, error)    { return f.addOK, f.failWith }
func (f *fakeStore) RemoveSubscriber(int64) (bool, error) { return f.removeOK, f.failWith }

type fakeReminder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	restarts int
	running  bool
}

func (f *fakeReminder) Start()   { f.mu.Lock(); f.starts++; f.running = true; f.mu.Unlock() }
func (f *fakeReminder) Stop()    { f.mu.Lock(); f.stops++; f.running = false; f.mu.Unlock() }
func (f *fakeReminder) Restart() { f.mu.Lock(); f.restarts++; f.mu.Unlock() }
func (f *fakeReminder) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func cmdByName(t *testing.T, cmds []Command, name string) Command {
	t.Helper()
	for _, c := range cmds {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("command %q not defined", name)
	return Command{}
}

func callHandler(t *testing.T, cmd Command, ad *fakeAdapter, args ...string) error {
	t.Helper()
	req := &Request{
		Chat:    kit.ChatTarget{ChatID: 55},
		FromID:  42,
		Command: cmd.Name,
		Args:    args,
		Adapter: ad,
		Log:     logx.Nop(),
	}
	return cmd.Handle(context.Background(), req)
}

func TestLatestCommandsUseSourceCaps(t *testing.T) {
	t.Parallel()

	contests := &fakeContests{latest: []contest.Record{
		{Name: "Round 1", StartsAt: time.Now().Add(time.Hour), URL: "https://x/1", Source: contest.Codeforces},
	}}
	cmds := Commands(Deps{Contests: contests, Store: &fakeStore{}, Reminder: &fakeReminder{}})

	tests := []struct {
		cmd   string
		src   contest.Source
		wantN int
	}{
		{"cf", contest.Codeforces, 3},
		{"nc", contest.Nowcoder, 3},
		{"atc", contest.AtCoder, 2},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			ad := newFakeAdapter()
			if err := callHandler(t, cmdByName(t, cmds, tt.cmd), ad); err != nil {
				t.Fatalf("handler: %v", err)
			}
			contests.mu.Lock()
			src, n := contests.lastSrc, contests.lastN
			contests.mu.Unlock()
			if src != tt.src || n != tt.wantN {
				t.Fatalf("Latest(%v, %d), want (%v, %d)", src, n, tt.src, tt.wantN)
			}
		})
	}
}

func TestTodayCommandReportsUnavailable(t *testing.T) {
	t.Parallel()

	contests := &fakeContests{todayErr: errors.New("no data")}
	cmds := Commands(Deps{Contests: contests, Store: &fakeStore{}, Reminder: &fakeReminder{}})
	ad := newFakeAdapter()

	if err := callHandler(t, cmdByName(t, cmds, "today"), ad); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := ad.wait(t); !strings.Contains(got.text, textDataUnavailable) {
		t.Fatalf("reply = %q", got.text)
	}
}

func TestRemindHere(t *testing.T) {
	t.Parallel()

	t.Run("subscribes", func(t *testing.T) {
		store := &fakeStore{addOK: true, sch: config.Schedule{Enabled: true, Hour: 8, Minute: 30}}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: &fakeReminder{}})
		ad := newFakeAdapter()
		if err := callHandler(t, cmdByName(t, cmds, "remind_here"), ad); err != nil {
			t.Fatalf("handler: %v", err)
		}
		got := ad.wait(t)
		if !strings.Contains(got.text, "will now receive") {
			t.Fatalf("reply = %q", got.text)
		}
		if strings.Contains(got.text, "disabled") {
			t.Fatalf("enabled schedule got the disabled hint: %q", got.text)
		}
	})

	t.Run("already subscribed", func(t *testing.T) {
		store := &fakeStore{addOK: false}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: &fakeReminder{}})
		ad := newFakeAdapter()
		if err := callHandler(t, cmdByName(t, cmds, "remind_here"), ad); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if got := ad.wait(t); !strings.Contains(got.text, "already subscribed") {
			t.Fatalf("reply = %q", got.text)
		}
	})

	t.Run("hints when disabled", func(t *testing.T) {
		store := &fakeStore{addOK: true, sch: config.Schedule{Enabled: false}}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: &fakeReminder{}})
		ad := newFakeAdapter()
		if err := callHandler(t, cmdByName(t, cmds, "remind_here"), ad); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if got := ad.wait(t); !strings.Contains(got.text, "disabled") {
			t.Fatalf("reply = %q", got.text)
		}
	})
}

func TestRemindTime(t *testing.T) {
	t.Parallel()

	t.Run("sets and restarts when enabled", func(t *testing.T) {
		store := &fakeStore{sch: config.Schedule{Enabled: true, Hour: 8, Minute: 30}}
		rem := &fakeReminder{}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: rem})
		ad := newFakeAdapter()
		if err := callHandler(t, cmdByName(t, cmds, "remind_time"), ad, "7", "45"); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if store.setHour != 7 || store.setMinute != 45 {
			t.Fatalf("SetFireTime(%d, %d)", store.setHour, store.setMinute)
		}
		rem.mu.Lock()
		restarts := rem.restarts
		rem.mu.Unlock()
		if restarts != 1 {
			t.Fatalf("restarts = %d, want 1", restarts)
		}
		if got := ad.wait(t); !strings.Contains(got.text, "07:45") {
			t.Fatalf("reply = %q", got.text)
		}
	})

	t.Run("no restart when disabled", func(t *testing.T) {
		store := &fakeStore{sch: config.Schedule{Enabled: false}}
		rem := &fakeReminder{}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: rem})
		if err := callHandler(t, cmdByName(t, cmds, "remind_time"), newFakeAdapter(), "7", "45"); err != nil {
			t.Fatalf("handler: %v", err)
		}
		rem.mu.Lock()
		defer rem.mu.Unlock()
		if rem.restarts != 0 {
			t.Fatalf("restarts = %d, want 0", rem.restarts)
		}
	})

	t.Run("usage on bad args", func(t *testing.T) {
		store := &fakeStore{setHour: -1, setMinute: -1}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: &fakeReminder{}})
		for _, args := range [][]string{{}, {"8"}, {"8", "x"}, {"y", "30"}, {"8", "30", "0"}} {
			ad := newFakeAdapter()
			if err := callHandler(t, cmdByName(t, cmds, "remind_time"), ad, args...); err != nil {
				t.Fatalf("handler(%v): %v", args, err)
			}
			if got := ad.wait(t); !strings.Contains(got.text, "Usage:") {
				t.Fatalf("reply for %v = %q", args, got.text)
			}
		}
		if store.setHour != -1 {
			t.Fatal("bad args reached the store")
		}
	})

	t.Run("range error from store", func(t *testing.T) {
		store := &fakeStore{setFireErr: config.ErrBadFireTime}
		cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: &fakeReminder{}})
		ad := newFakeAdapter()
		if err := callHandler(t, cmdByName(t, cmds, "remind_time"), ad, "24", "0"); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if got := ad.wait(t); !strings.Contains(got.text, "0-23") {
			t.Fatalf("reply = %q", got.text)
		}
	})
}

func TestRemindToggle(t *testing.T) {
	t.Parallel()

	store := &fakeStore{sch: config.Schedule{Enabled: false, Hour: 8, Minute: 30}}
	rem := &fakeReminder{}
	cmds := Commands(Deps{Contests: &fakeContests{}, Store: store, Reminder: rem})
	toggle := cmdByName(t, cmds, "remind_toggle")

	ad := newFakeAdapter()
	if err := callHandler(t, toggle, ad); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := ad.wait(t); !strings.Contains(got.text, "enabled at 08:30") {
		t.Fatalf("enable reply = %q", got.text)
	}
	rem.mu.Lock()
	starts := rem.starts
	rem.mu.Unlock()
	if starts != 1 {
		t.Fatalf("starts = %d, want 1", starts)
	}

	ad = newFakeAdapter()
	if err := callHandler(t, toggle, ad); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := ad.wait(t); !strings.Contains(got.text, "disabled") {
		t.Fatalf("disable reply = %q", got.text)
	}
	rem.mu.Lock()
	stops := rem.stops
	rem.mu.Unlock()
	if stops != 1 {
		t.Fatalf("stops = %d, want 1", stops)
	}
}

func TestHelpListsEverything(t *testing.T) {
	t.Parallel()

	r := NewRouter(newFakeAdapter(), nil, logx.Nop())
	r.Register(Commands(Deps{Contests: &fakeContests{}, Store: &fakeStore{}, Reminder: &fakeReminder{}})...)
	r.Register(HelpCommand(r))

	text := r.helpText()
	for _, want := range []string{"/cf", "/nc", "/atc", "/today", "/remind_time &lt;hour&gt; &lt;minute&gt;", "/remind_toggle", "/help", "(owner)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("help text missing %q:\n%s", want, text)
		}
	}
}
