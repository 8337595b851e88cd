package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/config"
	kit "schedbot/internal/transport"
)

type sentText struct {
	To   kit.ChatTarget
	Text string
}

type fakeAdapter struct {
	mu    sync.Mutex
	texts []sentText
	out   chan<- kit.Update
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{To: to, Text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendDocuments(context.Context, kit.ChatTarget, []kit.Document, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func (f *fakeAdapter) push(t *testing.T, m *kit.Message) {
	t.Helper()
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	require.NotNil(t, out, "adapter not started")
	out <- kit.Update{Message: m}
}

type pageServer struct {
	mu    sync.Mutex
	links []string
}

func (p *pageServer) set(links ...string) {
	p.mu.Lock()
	p.links = links
	p.mu.Unlock()
}

func (p *pageServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	b.WriteString("<html><body><ul class=\"docs\">")
	for i, l := range p.links {
		fmt.Fprintf(&b, "<li><a href=%q>Schedule %d</a></li>", l, i+1)
	}
	b.WriteString("</ul></body></html>")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func newTestApp(t *testing.T, page *pageServer) (*App, *fakeAdapter, string) {
	t.Helper()
	srv := httptest.NewServer(page)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{
  "telegram": {"token": "123:test"},
  "source": {"url": %q, "xpath": "//ul[@class='docs']/li/a"},
  "watch": {"interval": "1h", "run_on_start": false},
  "notify": {"mode": "text"},
  "storage": {"driver": "file", "path": %q},
  "logging": {"level": "error", "console": false}
}`, srv.URL+"/schedule/", filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfgm := config.NewConfigManager(path)
	cfgm.SetLookup(func(string) (string, bool) { return "", false })
	cfg, err := cfgm.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateForRun())

	ad := &fakeAdapter{}
	a, err := New(cfgm, Deps{Adapter: ad, Version: "test"})
	require.NoError(t, err)
	return a, ad, srv.URL
}

func TestTickOnceNotifiesOnlyOnChange(t *testing.T) {
	page := &pageServer{}
	page.set("/files/a.pdf", "/files/b.pdf")
	a, ad, base := newTestApp(t, page)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Registry().Subscribe(ctx, "42"))

	res, err := a.TickOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 1, res.Delivered)

	sent := ad.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].To.ChatID)
	assert.Contains(t, sent[0].Text, config.DefaultHeader)
	assert.Contains(t, sent[0].Text, `<a href="`+base+`/files/a.pdf">Schedule 1</a>`)

	res, err = a.TickOnce(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, ad.sent(), 1)

	page.set("/files/b.pdf", "/files/a.pdf")
	res, err = a.TickOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed, "reordering is a change")
	assert.Len(t, ad.sent(), 2)
}

func TestTickOnceEmptyPageKeepsState(t *testing.T) {
	page := &pageServer{}
	a, ad, _ := newTestApp(t, page)
	defer a.Close()
	ctx := context.Background()
	require.NoError(t, a.Registry().Subscribe(ctx, "42"))

	_, err := a.TickOnce(ctx)
	require.Error(t, err)
	assert.Empty(t, ad.sent())

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.(Status).Fingerprint)
	assert.Equal(t, 1, st.(Status).Subscribers)
}

func TestStartCommandTogglesSubscription(t *testing.T) {
	page := &pageServer{}
	page.set("/files/a.pdf")
	a, ad, _ := newTestApp(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		assert.NoError(t, a.Stop(sctx, StopUnknown))
	}()

	msg := &kit.Message{ID: 1, ChatID: 7, ChatKind: kit.ChatPrivate, FromID: 7, Text: "/start"}
	ad.push(t, msg)
	require.Eventually(t, func() bool { return len(ad.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, msgSubscribed, ad.sent()[0].Text)
	assert.Equal(t, int64(7), ad.sent()[0].To.ChatID)

	ok, err := a.Registry().IsSubscribed(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, ok)

	ad.push(t, msg)
	require.Eventually(t, func() bool { return len(ad.sent()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, msgUnsubscribed, ad.sent()[1].Text)

	ok, err = a.Registry().IsSubscribed(context.Background(), "7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartCommandInGroupSubscribesChat(t *testing.T) {
	page := &pageServer{}
	page.set("/files/a.pdf")
	a, ad, _ := newTestApp(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		assert.NoError(t, a.Stop(sctx, StopUnknown))
	}()

	ad.push(t, &kit.Message{ID: 2, ChatID: -100500, ChatKind: kit.ChatSuperGroup, ThreadID: 9, FromID: 7, Text: "/start"})
	require.Eventually(t, func() bool { return len(ad.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	got := ad.sent()[0]
	assert.Equal(t, kit.ChatTarget{ChatID: -100500, ThreadID: 9}, got.To)

	subs, err := a.Registry().List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"-100500"}, subs)
}

func TestApplyConfigSwapsSource(t *testing.T) {
	page := &pageServer{}
	page.set("/files/a.pdf")
	a, _, _ := newTestApp(t, page)
	defer a.Close()
	ctx := context.Background()

	res, err := a.TickOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Items)

	prev := a.cfgm.Get()
	next := *prev
	next.Source.XPath = "//a[contains(@href, 'nothing')]"
	next.Watch.AllowEmpty = true
	a.applyConfig(ctx, prev, &next)

	res, err = a.TickOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Items)
	assert.True(t, res.Changed)
}
