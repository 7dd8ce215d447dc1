package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

const (
	codeforcesBase    = "https://codeforces.com"
	codeforcesTimeout = 10 * time.Second
)

// Codeforces polls the public contest.list API. The feed lists upcoming
// rounds first, farthest start first, so scanning stops at the first entry
// that is not in phase BEFORE and the collected slice is reversed.
type Codeforces struct {
	base   string
	client *http.Client
	log    logx.Logger
	sleep  sleepFunc

	memo memo
}

func NewCodeforces(opt Options) *Codeforces {
	f := &Codeforces{
		base:   opt.BaseURL,
		client: opt.Client,
		log:    opt.Log.WithComp("source.cf"),
		sleep:  sleepCtx,
	}
	if f.base == "" {
		f.base = codeforcesBase
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: codeforcesTimeout}
	}
	return f
}

func (f *Codeforces) Source() contest.Source { return contest.Codeforces }

func (f *Codeforces) Fetch(ctx context.Context, force bool) ([]contest.Record, error) {
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

func (f *Codeforces) fetchOnce(ctx context.Context) ([]contest.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/api/contest.list?gym=false", nil)
	if err != nil {
		return nil, netErr(contest.Codeforces, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, netErr(contest.Codeforces, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, netErr(contest.Codeforces, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var body struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
		Result  []struct {
			ID               int64  `json:"id"`
			Name             string `json:"name"`
			Phase            string `json:"phase"`
			StartTimeSeconds int64  `json:"startTimeSeconds"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, parseErr(contest.Codeforces, "decode response: %w", err)
	}
	if body.Status != "OK" {
		return nil, parseErr(contest.Codeforces, "api status %q: %s", body.Status, body.Comment)
	}

	var recs []contest.Record
	for _, c := range body.Result {
		if c.Phase != "BEFORE" {
			break
		}
		recs = append(recs, contest.Record{
			Name:     c.Name,
			StartsAt: time.Unix(c.StartTimeSeconds, 0).In(time.Local),
			URL:      fmt.Sprintf("%s/contest/%d", f.base, c.ID),
			Source:   contest.Codeforces,
		})
	}
	// Soonest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}
