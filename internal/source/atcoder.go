package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

const (
	atcoderBase    = "https://atcoder.jp"
	atcoderTimeout = 10 * time.Second

	// Upcoming table layout: 5 cells per contest, cell 0 start time,
	// cell 1 name + link. Only the first two contests are taken.
	atcoderCellsPerRow = 5
	atcoderMinCells    = 10
	atcoderKeep        = 2
)

// AtCoder scrapes the contests page. The page labels start times +0900;
// they are normalized into the reference zone as the labeled wall clock
// minus one hour, truncated to minute precision.
type AtCoder struct {
	base   string
	client *http.Client
	log    logx.Logger
	sleep  sleepFunc

	memo memo
}

func NewAtCoder(opt Options) *AtCoder {
	f := &AtCoder{
		base:   opt.BaseURL,
		client: opt.Client,
		log:    opt.Log.WithComp("source.atc"),
		sleep:  sleepCtx,
	}
	if f.base == "" {
		f.base = atcoderBase
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: atcoderTimeout}
	}
	return f
}

func (f *AtCoder) Source() contest.Source { return contest.AtCoder }

func (f *AtCoder) Fetch(ctx context.Context, force bool) ([]contest.Record, error) {
	if !force {
		if recs := f.memo.get(); len(recs) > 0 {
			return recs, nil
		}
	}
	recs, err := withRetry(ctx, f.log, maxAttempts, backoffBase, f.sleep, f.fetchOnce)
	if err != nil {
		return nil, err
	}
	f.memo.set(recs)
	f.log.Info("fetched contests", logx.Int("count", len(recs)))
	return recs, nil
}

func (f *AtCoder) fetchOnce(ctx context.Context) ([]contest.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/contests/?lang=en", nil)
	if err != nil {
		return nil, netErr(contest.AtCoder, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, netErr(contest.AtCoder, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, netErr(contest.AtCoder, fmt.Errorf("unexpected status %s", resp.Status))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, parseErr(contest.AtCoder, "parse page: %w", err)
	}

	table := findByID(doc, "contest-table-upcoming")
	if table == nil {
		return nil, parseErr(contest.AtCoder, "upcoming contest table not found")
	}
	cells := tableCells(table)
	if len(cells) < atcoderMinCells {
		return nil, parseErr(contest.AtCoder, "upcoming table too small: %d cells", len(cells))
	}

	var recs []contest.Record
	for i := 0; i < atcoderKeep*atcoderCellsPerRow; i += atcoderCellsPerRow {
		rec, err := f.parseRow(cells[i], cells[i+1])
		if err != nil {
			f.log.Warn("skipping malformed contest row", logx.Err(err))
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, parseErr(contest.AtCoder, "no contest rows parsed")
	}
	return recs, nil
}

func (f *AtCoder) parseRow(timeCell, nameCell *html.Node) (contest.Record, error) {
	tn := findElement(timeCell, "time")
	if tn == nil {
		return contest.Record{}, fmt.Errorf("time element missing")
	}
	startsAt, err := atcoderStartTime(nodeText(tn))
	if err != nil {
		return contest.Record{}, err
	}

	a := findElement(nameCell, "a")
	if a == nil {
		return contest.Record{}, fmt.Errorf("contest link missing")
	}
	href := attrVal(a, "href")
	if href == "" {
		return contest.Record{}, fmt.Errorf("contest link has no href")
	}

	return contest.Record{
		Name:     strings.TrimSpace(nodeText(a)),
		StartsAt: startsAt,
		URL:      f.base + href,
		Source:   contest.AtCoder,
	}, nil
}

func atcoderStartTime(text string) (time.Time, error) {
	s := strings.TrimSpace(strings.ReplaceAll(text, "+0900", ""))
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time %q: %w", s, err)
	}
	t = t.Add(-time.Hour)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()), nil
}

// ---- html walking ----

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attrVal(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// tableCells returns the <td> nodes of the table body in document order.
func tableCells(table *html.Node) []*html.Node {
	tbody := findElement(table, "tbody")
	if tbody == nil {
		return nil
	}
	var cells []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			cells = append(cells, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tbody)
	return cells
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
