package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/pkg/logx"
)

var (
	ErrUnknownJob = errors.New("scheduler: unknown job")
	ErrBusy       = errors.New("scheduler: job already running")
)

type Config struct {
	Timezone string // IANA name, e.g. "Europe/Moscow"; empty means local
	// NoSpread disables the random delay before the first interval run.
	NoSpread bool
}

type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	run     Job
	entryID cron.EntryID
	spread  time.Duration

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64

	mu       sync.Mutex
	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

// Service owns a cron instance and the job definitions registered on it.
// Definitions survive Stop/Start and timezone changes.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	base   context.Context
	jobs   map[string]*jobDef

	inflight sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		// SecondOptional accepts both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		base:   context.Background(),
		jobs:   map[string]*jobDef{},
	}
}

// Add registers or replaces the job called name.
func (s *Service) Add(name, schedule string, timeout time.Duration, run Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if run == nil {
		return errors.New("job func required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if spec.Kind == SpecCron {
		if _, err := s.parser.Parse(spec.Cron); err != nil {
			return fmt.Errorf("cron %q: %w", spec.Cron, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.jobs[name]; old != nil && s.c != nil {
		s.c.Remove(old.entryID)
	}
	d := &jobDef{name: name, spec: spec, timeout: timeout, run: run}
	s.jobs[name] = d
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			delete(s.jobs, name)
			return err
		}
	}
	return nil
}

// Remove unregisters name. Unknown names are ignored.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.jobs[name]
	if d == nil {
		return
	}
	if s.c != nil {
		s.c.Remove(d.entryID)
	}
	delete(s.jobs, name)
}

func (s *Service) registerLocked(d *jobDef) error {
	var sched cron.Schedule
	switch d.spec.Kind {
	case SpecInterval:
		if s.cfg.NoSpread {
			sched = cron.Every(d.spec.Every)
		} else {
			sched, d.spread = intervalWithSpread(d.spec.Every, time.Now().In(s.loc))
		}
	default:
		var err error
		if sched, err = s.parser.Parse(d.spec.Cron); err != nil {
			return fmt.Errorf("cron %q: %w", d.spec.Cron, err)
		}
	}
	d.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.trigger(d, "schedule") }))
	s.log.Debug("job registered",
		logx.String("name", d.name),
		logx.String("spec", d.spec.String()),
		logx.Duration("timeout", d.timeout),
		logx.Duration("first_delay_jitter", d.spread),
	)
	return nil
}

// Start begins triggering. ctx is the parent of every job run.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base = ctx
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.jobs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("job register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering and waits for running jobs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
	s.log.Info("scheduler stopped")
}

// Apply updates the config; a timezone change re-registers every job.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	base := s.base
	s.mu.Unlock()

	if running && strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.Stop(ctx)
		cancel()
		s.Start(base)
	}
}

// RunNow triggers name immediately in the background. It fails with ErrBusy
// while a previous run is still going.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	d := s.jobs[name]
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if d.running.Load() {
		return ErrBusy
	}
	go s.trigger(d, "manual")
	return nil
}

func (s *Service) trigger(d *jobDef, source string) {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Debug("job still running, trigger skipped", logx.String("name", d.name), logx.String("source", source))
		return
	}
	s.inflight.Add(1)
	defer s.inflight.Done()
	defer d.running.Store(false)

	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	ctx := base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := runJob(ctx, d.run)
	took := time.Since(start)

	d.mu.Lock()
	d.lastRun, d.lastTook = start, took
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()
	d.runs.Add(1)

	if err != nil {
		s.log.Warn("job failed", logx.String("name", d.name), logx.String("source", source), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", d.name), logx.String("source", source), logx.Duration("took", took))
}

func runJob(ctx context.Context, run Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return run(ctx)
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

type JobInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Running  bool          `json:"running"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Next     time.Time     `json:"next,omitempty"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	LastTook time.Duration `json:"last_took"`
	LastErr  string        `json:"last_err,omitempty"`
}

// Snapshot lists registered jobs sorted by name.
func (s *Service) Snapshot() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		info := JobInfo{
			Name:    d.name,
			Spec:    d.spec.String(),
			Timeout: d.timeout,
			Running: d.running.Load(),
			Runs:    d.runs.Load(),
			Skipped: d.skipped.Load(),
		}
		if s.c != nil {
			info.Next = s.c.Entry(d.entryID).Next
		}
		d.mu.Lock()
		info.LastRun, info.LastTook, info.LastErr = d.lastRun, d.lastTook, d.lastErr
		d.mu.Unlock()
		out = append(out, info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
