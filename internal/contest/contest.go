// Package contest holds the data model shared by the fetchers, the cache,
// the repository and the bot surface.
package contest

import "time"

// TimeLayout is the minute-precision layout used for cached and displayed
// start times, rendered in the process-local zone.
const TimeLayout = "2006-01-02 15:04"

// Source identifies one of the external contest-listing providers.
// The value doubles as the cache key and the query command name.
type Source string

const (
	Codeforces Source = "cf"
	Nowcoder   Source = "nc"
	AtCoder    Source = "atc"
)

// Sources returns all providers in their fixed presentation order.
func Sources() []Source {
	return []Source{Codeforces, Nowcoder, AtCoder}
}

func (s Source) String() string { return string(s) }

// DisplayName is the human-facing provider name.
func (s Source) DisplayName() string {
	switch s {
	case Codeforces:
		return "Codeforces"
	case Nowcoder:
		return "Nowcoder"
	case AtCoder:
		return "AtCoder"
	default:
		return string(s)
	}
}

// Valid reports whether s is a known provider.
func (s Source) Valid() bool {
	switch s {
	case Codeforces, Nowcoder, AtCoder:
		return true
	}
	return false
}

// Record is one upcoming contest. StartsAt is normalized into the
// process-local zone; within a source's list records are ascending by
// StartsAt and all of them lie in the future at fetch time.
type Record struct {
	Name     string
	StartsAt time.Time
	URL      string
	Source   Source
}

// StartsOn reports whether the contest starts on the same calendar date as t,
// compared in t's location.
func (r Record) StartsOn(t time.Time) bool {
	at := r.StartsAt.In(t.Location())
	y1, m1, d1 := at.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
