package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contestbot/pkg/logx"
)

func atcoderPage(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="contest-table-upcoming"><table><tbody>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</tbody></table></div></body></html>`)
	return b.String()
}

func atcoderRow(ts, name, href string) string {
	return fmt.Sprintf(`<tr>
		<td><time>%s</time></td>
		<td><a href="%s">%s</a></td>
		<td>02:00</td><td>-</td><td>x</td>
	</tr>`, ts, href, name)
}

func TestAtCoderKeepsFirstTwoContests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contests/" {
			t.Errorf("path = %s, want /contests/", r.URL.Path)
		}
		fmt.Fprint(w, atcoderPage(
			atcoderRow("2024-03-09 21:00:00+0900", "Beginner Contest 300", "/contests/abc300"),
			atcoderRow("2024-03-16 21:00:30+0900", "Beginner Contest 301", "/contests/abc301"),
			atcoderRow("2024-03-23 21:00:00+0900", "Beginner Contest 302", "/contests/abc302"),
		))
	}))
	defer srv.Close()

	f := NewAtCoder(Options{BaseURL: srv.URL, Log: logx.Nop()})
	recs, err := f.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2 regardless of rows listed", len(recs))
	}
	if recs[0].Name != "Beginner Contest 300" {
		t.Fatalf("Name = %q, want %q", recs[0].Name, "Beginner Contest 300")
	}
	if want := srv.URL + "/contests/abc300"; recs[0].URL != want {
		t.Fatalf("URL = %s, want %s", recs[0].URL, want)
	}

	// Labeled 21:00 +0900 comes out as 20:00 wall clock, minute precision.
	want := time.Date(2024, time.March, 9, 20, 0, 0, 0, time.Local)
	if !recs[0].StartsAt.Equal(want) {
		t.Fatalf("StartsAt = %v, want %v", recs[0].StartsAt, want)
	}
	wantSecondsDropped := time.Date(2024, time.March, 16, 20, 0, 0, 0, time.Local)
	if !recs[1].StartsAt.Equal(wantSecondsDropped) {
		t.Fatalf("StartsAt = %v, want %v (seconds dropped)", recs[1].StartsAt, wantSecondsDropped)
	}
}

func TestAtCoderTooFewCells(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, atcoderPage(
			atcoderRow("2024-03-09 21:00:00+0900", "Lonely Contest", "/contests/x"),
		))
	}))
	defer srv.Close()

	f := NewAtCoder(Options{BaseURL: srv.URL, Log: logx.Nop()})
	f.sleep = noSleep

	_, err := f.Fetch(context.Background(), false)
	var srcErr *Error
	if !errors.As(err, &srcErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if srcErr.Kind != KindParse {
		t.Fatalf("Kind = %v, want %v", srcErr.Kind, KindParse)
	}
}

func TestAtCoderSkipsMalformedRow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, atcoderPage(
			atcoderRow("not a time", "Broken", "/contests/broken"),
			atcoderRow("2024-03-16 21:00:00+0900", "Good Contest", "/contests/good"),
		))
	}))
	defer srv.Close()

	f := NewAtCoder(Options{BaseURL: srv.URL, Log: logx.Nop()})
	recs, err := f.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Good Contest" {
		t.Fatalf("records = %+v, want only the well-formed row", recs)
	}
}

func TestAtCoderMissingTable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	}))
	defer srv.Close()

	f := NewAtCoder(Options{BaseURL: srv.URL, Log: logx.Nop()})
	f.sleep = noSleep

	_, err := f.Fetch(context.Background(), false)
	if err == nil {
		t.Fatal("expected error when upcoming table is missing")
	}
}
