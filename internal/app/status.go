package app

import (
	"context"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/task/scheduler"
	"schedbot/internal/watch"
)

// Status is the document served on /status.
type Status struct {
	Version     string                    `json:"version,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	Uptime      string                    `json:"uptime"`
	Source      string                    `json:"source"`
	Origin      string                    `json:"origin"`
	Interval    string                    `json:"interval"`
	Mode        string                    `json:"mode"`
	Fingerprint string                    `json:"fingerprint,omitempty"`
	Subscribers int                       `json:"subscribers"`
	LastTick    *watch.TickResult         `json:"last_tick,omitempty"`
	Jobs        []scheduler.JobInfo       `json:"jobs"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors"`
	// EventsDropped counts bus events lost to slow subscribers.
	EventsDropped uint64 `json:"events_dropped"`
}

// Status collects the current state. Storage errors fail the whole call so
// the ops endpoint reports 500 instead of a half-empty document.
func (a *App) Status(ctx context.Context) (any, error) {
	cfg := a.cfgm.Get()
	st := Status{
		Version:       a.version,
		StartedAt:     a.started,
		Source:        cfg.Source.URL,
		Origin:        cfg.Source.Origin(),
		Interval:      cfg.Watch.Interval,
		Mode:          cfg.Notify.Mode,
		LastTick:      a.watcher.Last(),
		Jobs:          a.sched.Snapshot(),
		Supervisors:   map[string]rtsup.Snapshot{},
		EventsDropped: a.bus.Dropped(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}

	fp, ok, err := a.store.LoadFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		st.Fingerprint = fp.String()
	}
	subs, err := a.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	st.Subscribers = len(subs)

	if a.sup != nil {
		st.Supervisors["app"] = a.sup.Snapshot()
	}
	for name, sup := range a.sups.Snapshot() {
		st.Supervisors[name] = sup.Snapshot()
	}
	return st, nil
}
