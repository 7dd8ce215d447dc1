package source

import (
	"fmt"

	"contestbot/internal/contest"
)

// Kind classifies a fetch failure. Network and parse failures share the same
// retry budget; the split exists for logs and tests.
type Kind int

const (
	KindNetwork Kind = iota
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is a failed fetch attempt (and, once the retry budget is exhausted,
// the failure of the fetch as a whole).
type Error struct {
	Source contest.Source
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s fetch: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func netErr(src contest.Source, err error) *Error {
	return &Error{Source: src, Kind: KindNetwork, Err: err}
}

func parseErr(src contest.Source, format string, args ...any) *Error {
	return &Error{Source: src, Kind: KindParse, Err: fmt.Errorf(format, args...)}
}
