package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

const (
	nowcoderBase    = "https://ac.nowcoder.com"
	nowcoderTimeout = 20 * time.Second
)

// Nowcoder polls the contest calendar API for the current month. Entries
// that start before the request's own issue time are dropped; the feed is
// already ascending so order is preserved.
type Nowcoder struct {
	base   string
	client *http.Client
	log    logx.Logger
	sleep  sleepFunc
	now    func() time.Time

	memo memo
}

func NewNowcoder(opt Options) *Nowcoder {
	f := &Nowcoder{
		base:   opt.BaseURL,
		client: opt.Client,
		log:    opt.Log.WithComp("source.nc"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	if f.base == "" {
		f.base = nowcoderBase
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: nowcoderTimeout}
	}
	return f
}

func (f *Nowcoder) Source() contest.Source { return contest.Nowcoder }

func (f *Nowcoder) Fetch(ctx context.Context, force bool) ([]contest.Record, error) {
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

func (f *Nowcoder) fetchOnce(ctx context.Context) ([]contest.Record, error) {
	issued := f.now()

	// The calendar endpoint expects "YYYY - M" (spaces, no zero padding) and
	// a cache-busting "_" parameter carrying the issue time in seconds with
	// millisecond precision.
	q := url.Values{}
	q.Set("token", "")
	q.Set("month", fmt.Sprintf("%d - %d", issued.Year(), int(issued.Month())))
	q.Set("_", strconv.FormatFloat(float64(issued.UnixMilli())/1000, 'f', 3, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/acm/calendar/contest?"+q.Encode(), nil)
	if err != nil {
		return nil, netErr(contest.Nowcoder, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, netErr(contest.Nowcoder, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, netErr(contest.Nowcoder, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			ContestName string `json:"contestName"`
			StartTime   int64  `json:"startTime"`
			Link        string `json:"link"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, parseErr(contest.Nowcoder, "decode response: %w", err)
	}
	if body.Code != 0 || body.Msg != "OK" {
		return nil, parseErr(contest.Nowcoder, "api error: code=%d msg=%q", body.Code, body.Msg)
	}

	issuedMs := issued.UnixMilli()
	var recs []contest.Record
	for _, c := range body.Data {
		if c.StartTime < issuedMs {
			continue
		}
		recs = append(recs, contest.Record{
			Name:     c.ContestName,
			StartsAt: time.UnixMilli(c.StartTime).In(time.Local),
			URL:      c.Link,
			Source:   contest.Nowcoder,
		})
	}
	return recs, nil
}
