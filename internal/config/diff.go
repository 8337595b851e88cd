package config

import (
	"reflect"
	"strings"

	logx "schedbot/pkg/logx"
)

// Change summarizes a config transition for logging and for deciding what
// to re-apply.
type Change struct {
	Sections []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	// Attrs are safe structured fields (tokens are never included).
	Attrs []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	// Telegram (never log token). The bot session lives for the process.
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		mark("telegram", oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}
	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		mark("source", false,
			logx.String("source.url", newCfg.Source.URL),
			logx.String("source.xpath", newCfg.Source.XPath),
		)
	}
	if !reflect.DeepEqual(oldCfg.Watch, newCfg.Watch) {
		mark("watch", false,
			logx.String("watch.interval", newCfg.Watch.Interval),
			logx.Bool("watch.sort_links", newCfg.Watch.SortLinks),
			logx.Bool("watch.allow_empty", newCfg.Watch.AllowEmpty),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		mark("notify", false,
			logx.String("notify.mode", newCfg.Notify.Mode),
			logx.Int("notify.workers", newCfg.Notify.Workers),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	// Ops (never log token)
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		mark("ops", false,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	if len(ch.Sections) > 0 {
		ch.Attrs = append(ch.Attrs, logx.Strings("changed", ch.Sections))
	}
	return ch
}
