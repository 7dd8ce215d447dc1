package bot

import (
	"fmt"
	"strings"

	"contestbot/internal/config"
	"contestbot/internal/contest"
	"contestbot/pkg/tgui"
)

const (
	textUnknownCommand = "Unknown command. Try /help."
	textUnauthorized   = "This command is for the bot owner."
	textBusy           = "Busy, try again in a moment."

	textNoContestsToday  = "No contests scheduled for today."
	textDataUnavailable  = "Contest data is temporarily unavailable. Try again later."
	textReminderDisabled = "Reminders are currently disabled. Use /remind_toggle to enable them."
)

// formatRecord renders one contest as a name, start time and link block.
func formatRecord(r contest.Record) tgui.H {
	return tgui.JoinH("\n",
		tgui.B(r.Name),
		tgui.Esc(r.StartsAt.Format(contest.TimeLayout)),
		tgui.Link(r.URL, r.URL),
	)
}

func formatRecords(recs []contest.Record) tgui.H {
	parts := make([]tgui.H, 0, len(recs))
	for _, r := range recs {
		parts = append(parts, formatRecord(r))
	}
	return tgui.JoinH("\n\n", parts...)
}

// FormatSourceList renders the reply for /cf, /nc and /atc. An empty list
// means the fetch failed and nothing is held, so it reads as unavailable.
func FormatSourceList(src contest.Source, recs []contest.Record) string {
	if len(recs) == 0 {
		return fmt.Sprintf("Could not fetch %s contests right now. Try again later.", src.DisplayName())
	}
	head := tgui.Raw("Upcoming ") + tgui.B(src.DisplayName()) + tgui.Raw(" contests:")
	return string(head + "\n\n" + formatRecords(recs))
}

// FormatDaily renders the daily reminder message and the /today reply. A
// non-nil err means no source data exists at all.
func FormatDaily(bySource map[contest.Source][]contest.Record, err error) string {
	header := tgui.Raw("⏰ ") + tgui.B("Today's contests")
	if err != nil {
		return string(header + "\n\n" + tgui.Esc(textDataUnavailable))
	}

	sections := make([]tgui.H, 0, len(bySource))
	for _, src := range contest.Sources() {
		recs := bySource[src]
		if len(recs) == 0 {
			continue
		}
		sections = append(sections, tgui.B(src.DisplayName())+"\n"+formatRecords(recs))
	}
	if len(sections) == 0 {
		return string(header + "\n\n" + tgui.Esc(textNoContestsToday))
	}
	return string(header + "\n\n" + tgui.JoinH("\n\n", sections...))
}

// FormatStatus renders the /remind_status reply.
func FormatStatus(sch config.Schedule, running bool) string {
	state := "disabled"
	if sch.Enabled {
		state = "enabled"
		if !running {
			state = "enabled (not running)"
		}
	}
	var b strings.Builder
	b.WriteString(string(tgui.B("Reminder settings")))
	b.WriteString("\n")
	fmt.Fprintf(&b, "State: %s\n", state)
	fmt.Fprintf(&b, "Time: %02d:%02d\n", sch.Hour, sch.Minute)
	fmt.Fprintf(&b, "Subscribed chats: %d", len(sch.Subscribers))
	return b.String()
}
