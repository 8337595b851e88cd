// Package registry is the subscriber set as users see it: membership checks,
// idempotent subscribe, unsubscribe and the /start toggle.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

// Status is the outcome of a toggle.
type Status int

const (
	Unsubscribed Status = iota
	Subscribed
)

func (s Status) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// Registry serializes check-then-write sequences on top of a
// storage.SubscriberStore. It keeps no copy of the set.
type Registry struct {
	store storage.SubscriberStore
	log   logx.Logger

	mu sync.Mutex
}

func New(store storage.SubscriberStore, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{store: store, log: log.With(logx.String("comp", "registry"))}
}

func (r *Registry) IsSubscribed(ctx context.Context, id string) (bool, error) {
	return r.store.HasSubscriber(ctx, normalize(id))
}

func (r *Registry) Subscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeLocked(ctx, normalize(id))
}

func (r *Registry) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.RemoveSubscriber(ctx, normalize(id))
}

func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.store.ListSubscribers(ctx)
}

// Toggle flips membership of id and reports the resulting status.
func (r *Registry) Toggle(ctx context.Context, id string) (Status, error) {
	id = normalize(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	on, err := r.store.HasSubscriber(ctx, id)
	if err != nil {
		return Unsubscribed, fmt.Errorf("toggle %s: %w", id, err)
	}
	if on {
		if err := r.store.RemoveSubscriber(ctx, id); err != nil {
			return Subscribed, fmt.Errorf("toggle %s: %w", id, err)
		}
		r.log.Info("subscriber removed", logx.String("id", id))
		return Unsubscribed, nil
	}
	if err := r.subscribeLocked(ctx, id); err != nil {
		return Unsubscribed, fmt.Errorf("toggle %s: %w", id, err)
	}
	r.log.Info("subscriber added", logx.String("id", id))
	return Subscribed, nil
}

func (r *Registry) subscribeLocked(ctx context.Context, id string) error {
	on, err := r.store.HasSubscriber(ctx, id)
	if err != nil {
		return err
	}
	if on {
		return nil
	}
	return r.store.AddSubscriber(ctx, id)
}

func normalize(id string) string { return strings.TrimSpace(id) }

// Target says who a toggle applies to and where its confirmation goes.
type Target struct {
	ID    string
	Reply transport.ChatTarget
}

// TargetFor picks the subscriber identity for a command message: the chat
// for group contexts, the sender for private ones. Group confirmations go
// back to the same chat and topic; private ones to the sender directly.
func TargetFor(m *transport.Message) (Target, bool) {
	if m == nil {
		return Target{}, false
	}
	if m.IsGroup() {
		if m.ChatID == 0 {
			return Target{}, false
		}
		return Target{
			ID:    FormatID(m.ChatID),
			Reply: transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		}, true
	}
	uid := m.FromID
	if uid == 0 {
		uid = m.ChatID
	}
	if uid == 0 {
		return Target{}, false
	}
	return Target{ID: FormatID(uid), Reply: transport.ChatTarget{ChatID: uid}}, true
}

func FormatID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseID converts a stored id back into a chat id.
func ParseID(id string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subscriber id %q: %w", id, err)
	}
	return v, nil
}
