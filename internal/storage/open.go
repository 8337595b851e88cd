package storage

import (
	"fmt"
	"strings"

	"schedbot/pkg/logx"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	switch NormalizeDriver(cfg.Driver) {
	case DriverFile:
		return openFile(cfg, log)
	case DriverSQLite:
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

// NormalizeDriver maps accepted spellings to a driver name. Unknown values
// are returned lower-cased so validation can report them.
func NormalizeDriver(s string) string {
	d := strings.ToLower(strings.TrimSpace(s))
	switch d {
	case "", "file", "files", "text":
		return DriverFile
	case "sqlite", "sqlite3":
		return DriverSQLite
	}
	return d
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "\r\n")
}
