package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"schedbot/internal/schedule"
	"schedbot/internal/transport"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  schedule.Snapshot
	err   error
	block chan struct{}
	// entered, when set, receives once Fetch has been called.
	entered chan struct{}
}

func (f *fakeFetcher) set(s schedule.Snapshot, err error) {
	f.mu.Lock()
	f.snap, f.err = s, err
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(schedule.Snapshot(nil), f.snap...), f.err
}

type memState struct {
	mu      sync.Mutex
	fp      schedule.Fingerprint
	has     bool
	loadErr error
	saveErr error
	saves   int
}

func (m *memState) LoadFingerprint(context.Context) (schedule.Fingerprint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", false, m.loadErr
	}
	return m.fp, m.has, nil
}

func (m *memState) SaveFingerprint(ctx context.Context, fp schedule.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.fp, m.has = fp, true
	m.saves++
	return nil
}

func (m *memState) get() (schedule.Fingerprint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fp, m.has
}

type staticSubs struct {
	ids []string
	err error
}

func (s staticSubs) List(context.Context) ([]string, error) { return s.ids, s.err }

type sentText struct {
	To   int64
	HTML string
}

type sentDocs struct {
	To      int64
	Names   []string
	Caption string
}

// recordingSender captures every outbound call. Chats listed in fail get an
// error instead.
type recordingSender struct {
	mu    sync.Mutex
	texts []sentText
	docs  []sentDocs
	fail  map[int64]bool
}

func (r *recordingSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[to.ChatID] {
		return transport.MessageRef{}, errors.New("Forbidden: bot was blocked by the user")
	}
	r.texts = append(r.texts, sentText{To: to.ChatID, HTML: text})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recordingSender) SendDocuments(_ context.Context, to transport.ChatTarget, docs []transport.Document, caption string, _ *transport.SendOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[to.ChatID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.FileName
	}
	r.docs = append(r.docs, sentDocs{To: to.ChatID, Names: names, Caption: caption})
	return nil
}

func (r *recordingSender) textRecipients() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.texts))
	for _, t := range r.texts {
		out = append(out, t.To)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// countingNotifier records how often fan-out ran and with what.
type countingNotifier struct {
	mu    sync.Mutex
	calls []schedule.Snapshot
	inner Notifier
}

func (c *countingNotifier) Deliver(ctx context.Context, snap schedule.Snapshot) (Report, error) {
	c.mu.Lock()
	c.calls = append(c.calls, snap)
	c.mu.Unlock()
	if c.inner != nil {
		return c.inner.Deliver(ctx, snap)
	}
	return Report{Recipients: 1, Delivered: 1}, nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeDownloader struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, it schedule.Item) (transport.Document, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.fail[it.Link] {
		return transport.Document{}, fmt.Errorf("http 404 Not Found")
	}
	name := it.Link[len("http://x/"):]
	return transport.Document{FileName: name, MIME: "application/pdf", Data: []byte("%PDF-1.4")}, nil
}
