// Package watch runs the change-detection loop: fetch the listing, compare
// its fingerprint with the last announced one, notify subscribers on change
// and remember what was announced.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/eventbus"
	"schedbot/internal/fetch"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

var (
	// ErrTickInProgress is returned when Tick is called while another tick
	// is still running.
	ErrTickInProgress = errors.New("watch: tick already in progress")
	// ErrState wraps failures to read or write the stored fingerprint.
	ErrState = errors.New("watch: state store")
)

const saveTimeout = 10 * time.Second

// Fetcher returns the current listing.
type Fetcher interface {
	Fetch(ctx context.Context) (schedule.Snapshot, error)
}

// Notifier delivers a changed snapshot; see FanOut.
type Notifier interface {
	Deliver(ctx context.Context, snap schedule.Snapshot) (Report, error)
}

type Config struct {
	// SortLinks fingerprints the sorted link set instead of page order.
	SortLinks bool
	// AllowEmpty accepts a listing with no items as a real state.
	AllowEmpty bool
	// TickTimeout bounds a whole tick. Zero means no bound.
	TickTimeout time.Duration
}

// TickResult describes one tick for logs and the ops endpoint.
type TickResult struct {
	ID          string               `json:"id"`
	Started     time.Time            `json:"started"`
	Took        time.Duration        `json:"took"`
	Changed     bool                 `json:"changed"`
	Items       int                  `json:"items"`
	Fingerprint schedule.Fingerprint `json:"fingerprint,omitempty"`
	Previous    schedule.Fingerprint `json:"previous,omitempty"`
	Kind        string               `json:"kind,omitempty"`
	Recipients  int                  `json:"recipients"`
	Delivered   int                  `json:"delivered"`
	Failed      int                  `json:"failed"`
	Err         string               `json:"error,omitempty"`
}

// Watcher owns the tick. It holds no state between ticks besides what the
// StateStore persists and the last result kept for reporting.
type Watcher struct {
	state    storage.StateStore
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger

	running sync.Mutex

	cfgMu   sync.RWMutex
	cfg     Config
	fetcher Fetcher

	last atomic.Pointer[TickResult]
	now  func() time.Time
}

type Option func(*Watcher)

func WithBus(b eventbus.Bus) Option { return func(w *Watcher) { w.bus = b } }

func WithLogger(l logx.Logger) Option { return func(w *Watcher) { w.log = l } }

func New(f Fetcher, state storage.StateStore, n Notifier, cfg Config, opts ...Option) *Watcher {
	w := &Watcher{
		fetcher:  f,
		state:    state,
		notifier: n,
		cfg:      cfg,
		log:      logx.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(w)
		}
	}
	w.log = w.log.With(logx.String("comp", "watch"))
	return w
}

// SetFetcher replaces the listing source, e.g. after the URL changed.
func (w *Watcher) SetFetcher(f Fetcher) {
	w.cfgMu.Lock()
	w.fetcher = f
	w.cfgMu.Unlock()
}

func (w *Watcher) SetConfig(cfg Config) {
	w.cfgMu.Lock()
	w.cfg = cfg
	w.cfgMu.Unlock()
}

func (w *Watcher) current() (Fetcher, Config) {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.fetcher, w.cfg
}

// Last returns the most recent tick result, or nil before the first tick.
func (w *Watcher) Last() *TickResult { return w.last.Load() }

// Tick runs one fetch-compare-notify cycle.
//
// A fetch failure leaves the stored fingerprint untouched. Once delivery
// has been attempted the new fingerprint is saved even if some recipients
// failed, so the same change is not announced twice.
func (w *Watcher) Tick(ctx context.Context) (TickResult, error) {
	if !w.running.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer w.running.Unlock()

	fetcher, cfg := w.current()
	res := TickResult{ID: uuid.NewString(), Started: w.now()}
	log := w.log.With(logx.String("tick", res.ID[:8]))

	if cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TickTimeout)
		defer cancel()
	}
	w.publish(eventbus.TickStarted, res)

	snap, err := fetcher.Fetch(ctx)
	if err == nil && snap.Empty() && !cfg.AllowEmpty {
		err = schedule.ErrEmptySnapshot
	}
	if err != nil {
		if !errors.Is(err, fetch.ErrFetch) {
			err = fmt.Errorf("%w: %w", fetch.ErrFetch, err)
		}
		log.Warn("fetch failed, will retry next tick", logx.Err(err))
		return w.finish(res, err), err
	}
	res.Items = len(snap)
	res.Fingerprint = schedule.ComputeWith(snap, schedule.Options{SortLinks: cfg.SortLinks})

	prev, ok, err := w.state.LoadFingerprint(ctx)
	if err != nil {
		err = fmt.Errorf("%w: load: %w", ErrState, err)
		log.Error("cannot read last fingerprint", logx.Err(err))
		return w.finish(res, err), err
	}
	res.Previous = prev
	if ok && !prev.Valid() {
		log.Warn("stored fingerprint is malformed, treating as changed", logx.String("stored", prev.String()))
	}

	if ok && prev == res.Fingerprint {
		log.Debug("schedule unchanged",
			logx.Int("items", res.Items),
			logx.String("fp", res.Fingerprint.Short()),
		)
		return w.finish(res, nil), nil
	}

	res.Changed = true
	log.Info("schedule changed",
		logx.Int("items", res.Items),
		logx.String("fp", res.Fingerprint.Short()),
		logx.String("prev", prev.Short()),
	)

	rep, err := w.notifier.Deliver(ctx, snap)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrState, err)
		log.Error("notification not attempted", logx.Err(err))
		return w.finish(res, err), err
	}
	res.Kind = rep.Kind.String()
	res.Recipients = rep.Recipients
	res.Delivered = rep.Delivered
	res.Failed = rep.Failed

	// The tick deadline may have expired during delivery; the save must
	// still happen.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := w.state.SaveFingerprint(sctx, res.Fingerprint); err != nil {
		err = fmt.Errorf("%w: save: %w", ErrState, err)
		log.Error("cannot persist fingerprint, change may be announced again", logx.Err(err))
		return w.finish(res, err), err
	}

	log.Info("subscribers notified",
		logx.String("kind", res.Kind),
		logx.Int("recipients", res.Recipients),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", res.Failed),
		logx.Int("documents", rep.Documents),
	)
	return w.finish(res, nil), nil
}

func (w *Watcher) finish(res TickResult, err error) TickResult {
	res.Took = w.now().Sub(res.Started)
	typ := eventbus.TickUnchanged
	switch {
	case err != nil:
		res.Err = err.Error()
		typ = eventbus.TickFailed
	case res.Changed:
		typ = eventbus.TickChanged
	}
	cp := res
	w.last.Store(&cp)
	w.publish(typ, res)
	return res
}

func (w *Watcher) publish(typ string, res TickResult) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(eventbus.Event{Type: typ, Data: res})
}
