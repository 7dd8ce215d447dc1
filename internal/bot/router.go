// Package bot routes inbound commands to handlers and renders replies.
package bot

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	kit "contestbot/internal/transport"
	"contestbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string // command word without the slash
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Request carries one matched command invocation into its handler.
type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Log     logx.Logger
}

// Reply sends HTML text back to the requesting chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}

const (
	defaultCmdTimeout = 30 * time.Second
	jobQueueSize      = 64
)

// Router matches inbound messages against a flat command table and runs
// handlers on a bounded worker pool so one slow fetch cannot stall the
// update stream.
type Router struct {
	mu     sync.RWMutex
	byName map[string]*Command
	order  []*Command
	owners []int64

	adapter kit.Adapter
	log     logx.Logger
	jobs    chan func()
}

func NewRouter(adapter kit.Adapter, owners []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		byName:  map[string]*Command{},
		owners:  append([]int64(nil), owners...),
		adapter: adapter,
		log:     log.WithComp("bot"),
		jobs:    make(chan func(), jobQueueSize),
	}
}

// Register adds commands to the table. Later registrations win on name
// collisions.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range cmds {
		c := cmds[i]
		name := strings.TrimPrefix(strings.TrimSpace(c.Name), "/")
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cc := &c
		r.byName[name] = cc
		r.order = append(r.order, cc)
		for _, a := range c.Aliases {
			a = strings.TrimPrefix(strings.TrimSpace(a), "/")
			if a != "" && !strings.Contains(a, " ") {
				r.byName[a] = cc
			}
		}
	}
}

// Menu returns the registered commands in registration order for the
// platform command menu.
func (r *Router) Menu() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// SetOwners swaps the owner list used for AccessOwnerOnly checks. Safe to
// call during a config reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.owners...)
}

// DispatchLoop consumes updates until ctx is done. It returns after every
// worker has finished its current job, so handlers never outlive the loop.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	r.log.Info("dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("panic in command worker",
						logx.Any("panic", rec),
						logx.Stack(string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}

	defer func() {
		wg.Wait()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	r.mu.RLock()
	cmd := r.byName[word]
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID}
	if cmd == nil {
		_, _ = r.adapter.SendText(root, chat, textUnknownCommand, nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, r.ownersSnapshot()) {
		_, _ = r.adapter.SendText(root, chat, textUnauthorized, nil)
		return
	}

	req := &Request{
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		Adapter: r.adapter,
		Log: r.log.With(
			logx.Int64("chat", msg.ChatID),
			logx.Int64("from", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	final := chain(cmd.Handle,
		mwPanicRecover(),
		mwRequestLog(),
		mwTimeout(timeout),
	)

	select {
	case r.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = r.adapter.SendText(root, chat, textBusy, nil)
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

// ---- middleware ----

type middleware func(next HandlerFunc) HandlerFunc

func chain(h HandlerFunc, m ...middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func mwTimeout(d time.Duration) middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func mwPanicRecover() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					req.Log.Error("panic recovered",
						logx.Any("panic", rec),
						logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("panic: %v", rec)
				}
			}()
			return next(ctx, req)
		}
	}
}

func mwRequestLog() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			if err != nil {
				req.Log.Warn("request failed", logx.Duration("dur", time.Since(start)), logx.Err(err))
			} else {
				req.Log.Info("request ok", logx.Duration("dur", time.Since(start)))
			}
			return err
		}
	}
}
