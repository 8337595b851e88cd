package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xpath"

	"schedbot/internal/fetch"
	"schedbot/internal/task/scheduler"
	logx "schedbot/pkg/logx"
)

// Validate reports every problem in c at once. It does not require a bot
// token; see ValidateForRun.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	// source
	if u, err := url.Parse(strings.TrimSpace(c.Source.URL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add(fmt.Errorf("source.url: must be an absolute http(s) URL, got %q", c.Source.URL))
	}
	if strings.TrimSpace(c.Source.XPath) == "" {
		add(errors.New("source.xpath: required"))
	} else if _, err := xpath.Compile(c.Source.XPath); err != nil {
		add(fmt.Errorf("source.xpath: %w", err))
	}
	dur("source.timeout", c.Source.Timeout)
	if c.Source.MaxBytes < 0 {
		add(errors.New("source.max_bytes: must be >= 0"))
	}

	// watch
	if _, err := scheduler.ParseSchedule(c.Watch.Interval); err != nil {
		add(fmt.Errorf("watch.interval: %w", err))
	}
	if tz := strings.TrimSpace(c.Watch.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("watch.timezone: %w", err))
		}
	}
	dur("watch.tick_timeout", c.Watch.TickTimeout)

	// notify
	switch strings.ToLower(strings.TrimSpace(c.Notify.Mode)) {
	case "", "text", "documents":
	default:
		add(fmt.Errorf("notify.mode: want text or documents, got %q", c.Notify.Mode))
	}
	if c.Notify.GroupSize < 0 || c.Notify.GroupSize > 10 {
		add(fmt.Errorf("notify.group_size: must be between 1 and 10, got %d", c.Notify.GroupSize))
	}
	if c.Notify.Workers < 0 || c.Notify.DownloadWorkers < 0 {
		add(errors.New("notify.workers: must be >= 0"))
	}
	if c.Notify.RatePerSec < 0 {
		add(errors.New("notify.rate_per_sec: must be >= 0"))
	}
	for _, ext := range c.Notify.DocumentExts {
		if e := strings.TrimSpace(ext); e == "" || strings.ContainsAny(e, "/\\ ") {
			add(fmt.Errorf("notify.document_exts: invalid extension %q", ext))
		}
	}
	dur("notify.send_timeout", c.Notify.SendTimeout)
	dur("notify.download_timeout", c.Notify.DownloadTimeout)

	// storage
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite":
	default:
		add(fmt.Errorf("storage.driver: want file or sqlite, got %q", c.Storage.Driver))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	// telegram + logging
	dur("telegram.poll_timeout", c.Telegram.PollTimeout)
	if _, err := c.Telegram.GroupLogID(); err != nil {
		add(err)
	}
	if lv := strings.TrimSpace(c.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if c.Logging.Telegram.Enabled {
		if lv := strings.TrimSpace(c.Logging.Telegram.MinLevel); lv != "" && !logx.ValidLevel(lv) {
			add(fmt.Errorf("logging.telegram.min_level: unknown level %q", lv))
		}
		if id, _ := c.Telegram.GroupLogID(); id == 0 {
			add(errors.New("logging.telegram.enabled requires telegram.group_log"))
		}
	}

	// ops
	if c.Ops.Enabled {
		add(validateOps(c.Ops))
	}

	return errors.Join(errs...)
}

// ValidateForRun is Validate plus the settings only the bot needs.
func (c *Config) ValidateForRun() error {
	err := c.Validate()
	if c != nil && strings.TrimSpace(c.Telegram.Token) == "" {
		err = errors.Join(err, errors.New("telegram.token: required (or set TOKEN)"))
	}
	return err
}

func validateOps(o OpsConfig) error {
	host, _, err := net.SplitHostPort(strings.TrimSpace(o.Addr))
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	for _, p := range []struct{ path, raw string }{
		{"ops.read_timeout", o.ReadTimeout},
		{"ops.write_timeout", o.WriteTimeout},
		{"ops.idle_timeout", o.IdleTimeout},
	} {
		if _, err := ParseDurationField(p.path, p.raw); err != nil {
			return err
		}
	}
	if !IsLoopbackHost(host) && strings.TrimSpace(o.Token) == "" && !o.AllowInsecure {
		return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", o.Addr)
	}
	return nil
}

// IsLoopbackHost reports whether host only accepts local connections.
// An empty host binds every interface and is not loopback.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// GroupLogID parses telegram.group_log. Empty yields 0.
func (t TelegramConfig) GroupLogID() (int64, error) {
	s := strings.TrimSpace(t.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: want a numeric chat id, got %q", t.GroupLog)
	}
	return id, nil
}

// Origin is the base derived from source.url: scheme, host and the first
// path segment.
func (s SourceConfig) Origin() string { return fetch.Origin(s.URL) }
