package config

// Config is the whole process configuration. Durations are Go duration
// strings (e.g. "500ms", "10s", "1h") so they survive every file format.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Source   SourceConfig   `json:"source"`
	Watch    WatchConfig    `json:"watch"`
	Notify   NotifyConfig   `json:"notify"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the operator chat id receiving forwarded log records.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Workers bounds concurrently handled commands.
	Workers int `json:"workers,omitempty"`
}

// SourceConfig describes the polled listing page.
type SourceConfig struct {
	URL   string `json:"url"`
	XPath string `json:"xpath"`
	// LabelContains keeps only links whose text contains this marker.
	LabelContains string `json:"label_contains,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	MaxBytes      int64  `json:"max_bytes,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	// ResolveAgainstOrigin resolves relative links against Origin()
	// instead of the page URL.
	ResolveAgainstOrigin bool `json:"resolve_against_origin,omitempty"`
}

type WatchConfig struct {
	// Interval accepts a duration ("1h"), HH:MM ("00:30") or a cron
	// expression ("0 */2 * * *").
	Interval string `json:"interval"`
	Timezone string `json:"timezone,omitempty"`
	// RunOnStart is a pointer so an omitted key defaults to true.
	RunOnStart  *bool  `json:"run_on_start,omitempty"`
	SortLinks   bool   `json:"sort_links,omitempty"`
	AllowEmpty  bool   `json:"allow_empty,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
	NoSpread    bool   `json:"no_spread,omitempty"`
}

type NotifyConfig struct {
	// Mode is "text" or "documents".
	Mode         string   `json:"mode"`
	Header       string   `json:"header,omitempty"`
	DocumentExts []string `json:"document_exts,omitempty"`
	GroupSize    int      `json:"group_size,omitempty"`

	Workers          int     `json:"workers,omitempty"`
	DownloadWorkers  int     `json:"download_workers,omitempty"`
	RatePerSec       float64 `json:"rate_per_sec,omitempty"`
	SendTimeout      string  `json:"send_timeout,omitempty"`
	DownloadTimeout  string  `json:"download_timeout,omitempty"`
	MaxDocumentBytes int64   `json:"max_document_bytes,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// OpsConfig controls the optional HTTP ops server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// RunOnStartEnabled reports the effective run_on_start value.
func (w WatchConfig) RunOnStartEnabled() bool {
	return w.RunOnStart == nil || *w.RunOnStart
}
