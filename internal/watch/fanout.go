package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"schedbot/internal/registry"
	"schedbot/internal/schedule"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

const (
	ModeText      = "text"
	ModeDocuments = "documents"
)

// Subscribers lists who gets notified.
type Subscribers interface {
	List(ctx context.Context) ([]string, error)
}

// Downloader retrieves the file behind a schedule item.
type Downloader interface {
	Download(ctx context.Context, item schedule.Item) (transport.Document, error)
}

// NotifyConfig tunes rendering and delivery.
type NotifyConfig struct {
	Mode         string
	Header       string
	DocumentExts []string
	GroupSize    int

	Workers         int
	DownloadWorkers int
	RatePerSec      float64
	SendTimeout     time.Duration
}

func (c NotifyConfig) withDefaults() NotifyConfig {
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = ModeText
	}
	if c.GroupSize <= 0 || c.GroupSize > tgui.MaxMediaGroup {
		c.GroupSize = tgui.MaxMediaGroup
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = 2
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Report summarizes one fan-out.
type Report struct {
	Kind       PayloadKind
	Recipients int
	Delivered  int
	Failed     int
	Documents  int
}

// FanOut renders a changed snapshot once and delivers it to every
// subscriber. One recipient's failure never affects another.
type FanOut struct {
	sender transport.Sender
	subs   Subscribers
	log    logx.Logger

	mu         sync.RWMutex
	dl         Downloader
	cfg        NotifyConfig
	limiter    *rate.Limiter
	classifier schedule.DocumentClassifier
}

// NewFanOut wires delivery. dl may be nil when only text mode is used.
func NewFanOut(sender transport.Sender, subs Subscribers, dl Downloader, cfg NotifyConfig, log logx.Logger) *FanOut {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &FanOut{
		sender: sender,
		subs:   subs,
		dl:     dl,
		log:    log.With(logx.String("comp", "fanout")),
	}
	f.SetConfig(cfg)
	return f
}

// SetConfig swaps the delivery settings; in-flight deliveries keep theirs.
func (f *FanOut) SetConfig(cfg NotifyConfig) {
	cfg = cfg.withDefaults()
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec)))
	}
	f.mu.Lock()
	f.cfg = cfg
	f.limiter = lim
	f.classifier = schedule.NewDocumentClassifier(cfg.DocumentExts)
	f.mu.Unlock()
}

// SetDownloader replaces the document source, e.g. after its limits changed.
func (f *FanOut) SetDownloader(dl Downloader) {
	f.mu.Lock()
	f.dl = dl
	f.mu.Unlock()
}

func (f *FanOut) downloader() Downloader {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dl
}

func (f *FanOut) settings() (NotifyConfig, *rate.Limiter, schedule.DocumentClassifier) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg, f.limiter, f.classifier
}

// Deliver notifies every subscriber about snap. The returned error is
// non-nil only when the subscriber list itself could not be read, in which
// case nothing was attempted.
func (f *FanOut) Deliver(ctx context.Context, snap schedule.Snapshot) (Report, error) {
	cfg, lim, cls := f.settings()

	ids, err := f.subs.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list subscribers: %w", err)
	}
	rep := Report{Recipients: len(ids)}
	if len(ids) == 0 {
		f.log.Info("no subscribers to notify")
		return rep, nil
	}

	payload := f.compose(ctx, snap, cfg, cls)
	rep.Kind = payload.Kind()
	if p, ok := payload.(DocumentPayload); ok {
		rep.Documents = p.Documents()
	}

	sctx, stop := sendContext(ctx)
	defer stop()

	var delivered, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := f.deliverOne(sctx, id, payload, cfg, lim); err != nil {
				failed.Add(1)
				f.log.Warn("delivery failed", logx.String("to", id), logx.Err(err))
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	rep.Delivered = int(delivered.Load())
	rep.Failed = int(failed.Load())
	return rep, nil
}

// sendContext drops the tick deadline for the send phase, since slow
// downloads may have used it up. Each send is bounded by SendTimeout instead.
// Cancellation of ctx still stops the sends.
func sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if errors.Is(ctx.Err(), context.Canceled) {
		cancel()
		return sctx, cancel
	}
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancel()
		}
	})
	return sctx, func() {
		stop()
		cancel()
	}
}

// Compose renders snap with the current settings. Documents are downloaded
// once and shared by every recipient. A documents-mode payload degrades to
// text when no file could be retrieved.
func (f *FanOut) Compose(ctx context.Context, snap schedule.Snapshot) Payload {
	cfg, _, cls := f.settings()
	return f.compose(ctx, snap, cfg, cls)
}

func (f *FanOut) compose(ctx context.Context, snap schedule.Snapshot, cfg NotifyConfig, cls schedule.DocumentClassifier) Payload {
	digest := RenderDigest(cfg.Header, snap)
	dl := f.downloader()
	if cfg.Mode != ModeDocuments || dl == nil {
		return TextPayload{HTML: digest}
	}

	docs := f.downloadAll(ctx, dl, cls.Documents(snap), cfg.DownloadWorkers)
	if len(docs) == 0 {
		f.log.Info("no documents retrieved, sending text digest")
		return TextPayload{HTML: digest}
	}

	p := DocumentPayload{Groups: chunkDocuments(docs, cfg.GroupSize)}
	if tgui.FitsCaption(digest) {
		p.Caption = digest
	} else {
		p.Preface = digest
	}
	return p
}

// downloadAll fetches items concurrently and returns the successes in
// snapshot order.
func (f *FanOut) downloadAll(ctx context.Context, dl Downloader, items []schedule.Item, workers int) []transport.Document {
	slots := make([]*transport.Document, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, it := range items {
		g.Go(func() error {
			doc, err := dl.Download(gctx, it)
			if err != nil {
				f.log.Warn("document download failed", logx.String("link", it.Link), logx.Err(err))
				return nil
			}
			slots[i] = &doc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]transport.Document, 0, len(items))
	for _, d := range slots {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

func (f *FanOut) deliverOne(ctx context.Context, id string, p Payload, cfg NotifyConfig, lim *rate.Limiter) error {
	chatID, err := registry.ParseID(id)
	if err != nil {
		return err
	}
	to := transport.ChatTarget{ChatID: chatID}
	opt := &transport.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}

	ctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	switch p := p.(type) {
	case TextPayload:
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		_, err := f.sender.SendText(ctx, to, p.HTML, opt)
		return err
	case DocumentPayload:
		if p.Preface != "" {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			if _, err := f.sender.SendText(ctx, to, p.Preface, opt); err != nil {
				return err
			}
		}
		for i, group := range p.Groups {
			caption := ""
			if i == 0 {
				caption = p.Caption
			}
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			if err := f.sender.SendDocuments(ctx, to, group, caption, opt); err != nil {
				return fmt.Errorf("group %d: %w", i+1, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown payload %T", p)
	}
}
