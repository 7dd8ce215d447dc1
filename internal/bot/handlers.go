package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"contestbot/internal/config"
	"contestbot/internal/contest"
	"contestbot/pkg/tgui"
)

// Display caps per source for the query commands.
const (
	latestDefault = 3
	latestAtCoder = 2
)

// ContestService is the repository surface the handlers consume.
type ContestService interface {
	Latest(ctx context.Context, src contest.Source, n int) []contest.Record
	Today(ctx context.Context) (map[contest.Source][]contest.Record, error)
}

// ScheduleStore is the config surface the reminder commands consume.
type ScheduleStore interface {
	Schedule() config.Schedule
	SetEnabled(v bool) error
	SetFireTime(hour, minute int) error
	AddSubscriber(chatID int64) (bool, error)
	RemoveSubscriber(chatID int64) (bool, error)
}

// ReminderControl drives the reminder service from chat commands.
type ReminderControl interface {
	Start()
	Stop()
	Restart()
	Running() bool
}

type Deps struct {
	Contests ContestService
	Store    ScheduleStore
	Reminder ReminderControl
}

// Commands builds the full command table.
func Commands(d Deps) []Command {
	return []Command{
		{
			Name:        "cf",
			Description: "upcoming Codeforces contests",
			Handle:      latestHandler(d, contest.Codeforces, latestDefault),
		},
		{
			Name:        "nc",
			Description: "upcoming Nowcoder contests",
			Handle:      latestHandler(d, contest.Nowcoder, latestDefault),
		},
		{
			Name:        "atc",
			Description: "upcoming AtCoder contests",
			Handle:      latestHandler(d, contest.AtCoder, latestAtCoder),
		},
		{
			Name:        "today",
			Description: "contests starting today",
			Handle: func(ctx context.Context, req *Request) error {
				bySource, err := d.Contests.Today(ctx)
				return req.Reply(ctx, FormatDaily(bySource, err))
			},
		},
		{
			Name:        "remind_here",
			Description: "send daily reminders to this chat",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				added, err := d.Store.AddSubscriber(req.Chat.ChatID)
				if err != nil {
					_ = req.Reply(ctx, "Could not update subscriptions.")
					return err
				}
				if !added {
					return req.Reply(ctx, "This chat is already subscribed.")
				}
				text := "This chat will now receive daily contest reminders."
				if !d.Store.Schedule().Enabled {
					text += "\n" + textReminderDisabled
				}
				return req.Reply(ctx, text)
			},
		},
		{
			Name:        "unremind_here",
			Description: "stop daily reminders for this chat",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				removed, err := d.Store.RemoveSubscriber(req.Chat.ChatID)
				if err != nil {
					_ = req.Reply(ctx, "Could not update subscriptions.")
					return err
				}
				if !removed {
					return req.Reply(ctx, "This chat is not subscribed.")
				}
				return req.Reply(ctx, "This chat will no longer receive daily reminders.")
			},
		},
		{
			Name:        "remind_time",
			Description: "set the daily reminder time",
			Usage:       "/remind_time <hour> <minute>",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				hour, minute, ok := parseFireTime(req.Args)
				if !ok {
					return req.Reply(ctx, "Usage: "+string(tgui.Code("/remind_time <hour 0-23> <minute 0-59>")))
				}
				if err := d.Store.SetFireTime(hour, minute); err != nil {
					if errors.Is(err, config.ErrBadFireTime) {
						return req.Reply(ctx, "Hour must be 0-23 and minute 0-59.")
					}
					_ = req.Reply(ctx, "Could not save the reminder time.")
					return err
				}
				// Re-arm a sleeping loop so the new time applies today.
				if d.Store.Schedule().Enabled {
					d.Reminder.Restart()
				}
				return req.Reply(ctx, fmt.Sprintf("Daily reminder time set to %02d:%02d.", hour, minute))
			},
		},
		{
			Name:        "remind_toggle",
			Description: "enable or disable daily reminders",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				next := !d.Store.Schedule().Enabled
				if err := d.Store.SetEnabled(next); err != nil {
					_ = req.Reply(ctx, "Could not save the reminder state.")
					return err
				}
				if next {
					d.Reminder.Start()
					sch := d.Store.Schedule()
					return req.Reply(ctx, fmt.Sprintf("Daily reminders enabled at %02d:%02d.", sch.Hour, sch.Minute))
				}
				d.Reminder.Stop()
				return req.Reply(ctx, "Daily reminders disabled.")
			},
		},
		{
			Name:        "remind_status",
			Description: "show the reminder schedule",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, FormatStatus(d.Store.Schedule(), d.Reminder.Running()))
			},
		},
	}
}

// HelpCommand renders the registered command table; register it last so it
// lists everything.
func HelpCommand(r *Router) Command {
	return Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show available commands",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	}
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString(string(tgui.B("Contest reminder bot")))
	b.WriteString("\n\n")
	for _, c := range r.order {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := string(tgui.Code(usage)) + " " + string(tgui.Esc(c.Description))
		if c.Access == AccessOwnerOnly {
			line += " (owner)"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func latestHandler(d Deps, src contest.Source, n int) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		recs := d.Contests.Latest(ctx, src, n)
		return req.Reply(ctx, FormatSourceList(src, recs))
	}
}

func parseFireTime(args []string) (hour, minute int, ok bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}
