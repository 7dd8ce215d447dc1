package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"contestbot/internal/config"
	"contestbot/internal/contest"
)

func rec(name, url string, at time.Time) contest.Record {
	return contest.Record{Name: name, StartsAt: at, URL: url}
}

func TestFormatSourceListEmptyReadsAsUnavailable(t *testing.T) {
	t.Parallel()

	got := FormatSourceList(contest.Codeforces, nil)
	want := "Could not fetch Codeforces contests right now. Try again later."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatSourceListEscapesNames(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 17, 35, 0, 0, time.UTC)
	got := FormatSourceList(contest.Codeforces, []contest.Record{
		rec("Round <1> & Final", "https://codeforces.com/contest/1", at),
	})

	if !strings.Contains(got, "Upcoming <b>Codeforces</b> contests:") {
		t.Fatalf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "<b>Round &lt;1&gt; &amp; Final</b>") {
		t.Fatalf("name not escaped:\n%s", got)
	}
	if !strings.Contains(got, "2026-03-14 17:35") {
		t.Fatalf("missing start time:\n%s", got)
	}
	if !strings.Contains(got, `<a href="https://codeforces.com/contest/1">`) {
		t.Fatalf("missing link:\n%s", got)
	}
}

func TestFormatDaily(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("error", func(t *testing.T) {
		got := FormatDaily(nil, errors.New("all sources down"))
		if !strings.Contains(got, textDataUnavailable) {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("nothing today", func(t *testing.T) {
		got := FormatDaily(map[contest.Source][]contest.Record{}, nil)
		if !strings.Contains(got, textNoContestsToday) {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("sections follow source order and skip empties", func(t *testing.T) {
		got := FormatDaily(map[contest.Source][]contest.Record{
			contest.AtCoder:    {rec("ABC 500", "https://atcoder.jp/contests/abc500", at)},
			contest.Codeforces: {rec("Div 2", "https://codeforces.com/contest/2", at)},
			contest.Nowcoder:   {},
		}, nil)

		cf := strings.Index(got, "<b>Codeforces</b>")
		atc := strings.Index(got, "<b>AtCoder</b>")
		if cf < 0 || atc < 0 || cf > atc {
			t.Fatalf("section order wrong (cf=%d atc=%d):\n%s", cf, atc, got)
		}
		if strings.Contains(got, "Nowcoder") {
			t.Fatalf("empty source rendered:\n%s", got)
		}
	})
}

func TestFormatStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sch     config.Schedule
		running bool
		state   string
	}{
		{"disabled", config.Schedule{Hour: 8, Minute: 30}, false, "State: disabled"},
		{"enabled and running", config.Schedule{Enabled: true, Hour: 8, Minute: 30, Subscribers: []int64{1, 2}}, true, "State: enabled\n"},
		{"enabled but loop down", config.Schedule{Enabled: true, Hour: 8, Minute: 30}, false, "State: enabled (not running)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatStatus(tt.sch, tt.running)
			if !strings.Contains(got, tt.state) {
				t.Fatalf("got %q, want state %q", got, tt.state)
			}
			if !strings.Contains(got, "Time: 08:30") {
				t.Fatalf("got %q, want time line", got)
			}
			want := fmt.Sprintf("Subscribed chats: %d", len(tt.sch.Subscribers))
			if !strings.Contains(got, want) {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}
