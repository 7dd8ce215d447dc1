package config

import (
	"reflect"
	"sort"
	"strings"

	"contestbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus structured
// attrs safe for logging (the token never appears, only whether it is set).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerIDs, newCfg.Telegram.OwnerIDs) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.DataDir != newCfg.DataDir || oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.String("cache.driver", strings.TrimSpace(newCfg.Cache.Driver)),
			logx.Bool("cache.path_set", strings.TrimSpace(newCfg.Cache.Path) != ""),
		)
	}

	if oldCfg.Refresh != newCfg.Refresh {
		changed = append(changed, "refresh")
		attrs = append(attrs, logx.String("refresh.spec", strings.TrimSpace(newCfg.Refresh.Spec)))
	}

	if oldCfg.Reminder.Enabled != newCfg.Reminder.Enabled ||
		oldCfg.Reminder.Hour != newCfg.Reminder.Hour ||
		oldCfg.Reminder.Minute != newCfg.Reminder.Minute ||
		!reflect.DeepEqual(oldCfg.Reminder.Subscribers, newCfg.Reminder.Subscribers) {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.Bool("reminder.enabled", newCfg.Reminder.Enabled),
			logx.Int("reminder.hour", newCfg.Reminder.Hour),
			logx.Int("reminder.minute", newCfg.Reminder.Minute),
			logx.Int("reminder.subscriber_count", len(newCfg.Reminder.Subscribers)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
