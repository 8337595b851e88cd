package config

import (
	"path/filepath"
	"strings"
)

const (
	DefaultInterval = "1h"
	DefaultHeader   = "🚨 Schedule changed:"
	DefaultDataDir  = "./data"
	DefaultOpsAddr  = "127.0.0.1:6060"
)

// ApplyDefaults fills every empty field that has a sensible default.
// It never overwrites a value that was set.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	setStr(&c.Telegram.PollTimeout, "10s")

	setStr(&c.Source.Timeout, "30s")

	setStr(&c.Watch.Interval, DefaultInterval)
	setStr(&c.Watch.TickTimeout, "10m")

	setStr(&c.Notify.Mode, "text")
	setStr(&c.Notify.Header, DefaultHeader)
	setStr(&c.Notify.SendTimeout, "30s")
	setStr(&c.Notify.DownloadTimeout, "1m")
	if c.Notify.RatePerSec <= 0 {
		// Telegram allows roughly 30 messages per second across chats.
		c.Notify.RatePerSec = 20
	}

	setStr(&c.Storage.Driver, "file")
	setStr(&c.Storage.Path, DefaultDataDir)
	if strings.EqualFold(strings.TrimSpace(c.Storage.Driver), "sqlite") && filepath.Ext(c.Storage.Path) == "" {
		c.Storage.Path = filepath.Join(c.Storage.Path, "schedbot.db")
	}

	setStr(&c.Logging.Level, "info")
	setStr(&c.Logging.Telegram.MinLevel, "error")

	setStr(&c.Ops.Addr, DefaultOpsAddr)
}

func setStr(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
