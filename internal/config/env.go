package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/subosito/gotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an
// error unless required is true.
func LoadDotEnv(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	err := gotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// envBinding maps an environment variable onto a config field.
type envBinding struct {
	key string
	set func(c *Config, v string)
}

var envBindings = []envBinding{
	{"TOKEN", func(c *Config, v string) { c.Telegram.Token = v }},
	{"URL", func(c *Config, v string) { c.Source.URL = v }},
	{"XPATH", func(c *Config, v string) { c.Source.XPath = v }},
	{"INTERVAL", func(c *Config, v string) { c.Watch.Interval = v }},
	{"DATA_DIR", func(c *Config, v string) { c.Storage.Path = v }},
	{"STORAGE_DRIVER", func(c *Config, v string) { c.Storage.Driver = v }},
	{"NOTIFY_MODE", func(c *Config, v string) { c.Notify.Mode = v }},
	{"GROUP_LOG", func(c *Config, v string) { c.Telegram.GroupLog = v }},
	{"LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = v }},
}

// ApplyEnv overlays environment variables on c and returns the keys that
// were applied. Each key is also honored with a SCHEDBOT_ prefix, which
// takes precedence over the bare name.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var applied []string
	for _, b := range envBindings {
		v, ok := lookup("SCHEDBOT_" + b.key)
		if !ok || strings.TrimSpace(v) == "" {
			v, ok = lookup(b.key)
		}
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		b.set(c, v)
		applied = append(applied, b.key)
	}
	return applied
}
