package storage

import (
	"context"
	"errors"
	"time"

	"schedbot/internal/schedule"
)

var (
	ErrClosed    = errors.New("storage: store closed")
	ErrInvalidID = errors.New("storage: invalid subscriber id")
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): Path is a directory
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SubscriberStore is the durable subscriber set. Every call goes to the
// backing medium; implementations keep no cache.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]string, error)
	HasSubscriber(ctx context.Context, id string) (bool, error)
	// AddSubscriber is idempotent.
	AddSubscriber(ctx context.Context, id string) error
	// RemoveSubscriber removes every occurrence and is a no-op when absent.
	RemoveSubscriber(ctx context.Context, id string) error
}

// StateStore holds the last announced fingerprint.
type StateStore interface {
	// LoadFingerprint reports ok=false until the first successful save.
	LoadFingerprint(ctx context.Context) (fp schedule.Fingerprint, ok bool, err error)
	// SaveFingerprint replaces the stored value atomically.
	SaveFingerprint(ctx context.Context, fp schedule.Fingerprint) error
}

type Store interface {
	SubscriberStore
	StateStore
	Close() error
}
