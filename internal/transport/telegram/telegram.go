// Package telegram implements the transport adapter on telebot's long
// poller.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "contestbot/internal/transport"
	"contestbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second

	// Telegram caps bots at ~30 messages per second globally.
	defaultRatePerSec = 25

	updateBuffer = 64
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outbound sends across all chats. Zero means the
	// default.
	RatePerSec int
	// Menu is applied via setMyCommands when the adapter starts.
	Menu []kit.BotCommand
}

type Adapter struct {
	log  logx.Logger
	bot  *tele.Bot
	out  chan kit.Update
	lim  *rate.Limiter
	menu []kit.BotCommand

	runMu   sync.Mutex
	running bool

	// dropped counts inbound updates discarded because the consumer lagged
	// behind the poll loop.
	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.WithComp("telegram")

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}

	a := &Adapter{
		log:  log,
		bot:  b,
		out:  make(chan kit.Update, updateBuffer),
		lim:  rate.NewLimiter(rate.Limit(rps), rps),
		menu: cfg.Menu,
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Unhandled commands fall through to OnText, so one handler sees every
	// inbound text message.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		up := kit.Update{Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
		}}
		select {
		case a.out <- up:
		default:
			atomic.AddUint64(&a.dropped, 1)
		}
		return nil
	})
}

// Updates returns the inbound message stream. The channel is never closed;
// consumers stop via their own context.
func (a *Adapter) Updates() <-chan kit.Update {
	return a.out
}

// SetMenu replaces the command menu that Start applies. It has no effect on
// an already-running adapter.
func (a *Adapter) SetMenu(menu []kit.BotCommand) {
	a.runMu.Lock()
	a.menu = menu
	a.runMu.Unlock()
}

// Start applies the command menu and launches the poll loop. Starting a
// running adapter is a no-op.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	menu := a.menu
	a.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(menu) > 0 {
		cmds := make([]tele.Command, 0, len(menu))
		for _, c := range menu {
			cmds = append(cmds, tele.Command{
				Text:        strings.TrimPrefix(c.Command, "/"),
				Description: c.Description,
			})
		}
		// Best-effort: a failed menu update must not block startup.
		if err := a.bot.SetCommands(cmds); err != nil {
			a.log.Warn("set command menu failed", logx.Err(err))
		} else {
			a.log.Debug("command menu updated", logx.Int("count", len(cmds)))
		}
	}

	go func() {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

// Stop halts the poll loop. telebot's Stop blocks until the poller drains,
// so a grace window keeps shutdown snappy when a long-poll request is still
// in flight.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	a.runMu.Unlock()

	if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
		a.log.Warn("inbound updates dropped (consumer slow)", logx.Any("count", n))
	}

	done := make(chan struct{})
	go func() {
		a.bot.Stop()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
		a.log.Info("stopped")
		return nil
	case <-time.After(grace):
		a.log.Warn("stop timed out, abandoning poller")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendText delivers text to a chat, splitting it into chunks under the
// platform limit. The rate limiter paces every chunk. It returns the message
// id of the first chunk sent.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitText(text, sendTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}

	var firstID int64
	for i, chunk := range chunks {
		if err := a.lim.Wait(ctx); err != nil {
			return firstID, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return firstID, err
		}
		if i == 0 {
			firstID = int64(msg.ID)
		}
	}
	return firstID, nil
}
