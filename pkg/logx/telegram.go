package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"schedbot/internal/transport"
)

const (
	telegramQueueSize = 256
	telegramMaxText   = 3500
	telegramSendWait  = 10 * time.Second
)

type sinkSettings struct {
	to       transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

// telegramSink is a zerolog.LevelWriter that forwards selected records to an
// operator chat. Writes never block the logging call site; excess records
// are dropped.
type telegramSink struct {
	mu     sync.Mutex
	sender transport.Sender
	set    sinkSettings

	queue  chan string
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{sender: sender, queue: make(chan string, telegramQueueSize)}
}

func (t *telegramSink) setSender(s transport.Sender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) configure(set sinkSettings) {
	t.mu.Lock()
	t.set = set
	t.mu.Unlock()
}

func (t *telegramSink) start() {
	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.loop(ctx)
		}()
	})
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	set := t.set
	hasSender := t.sender != nil
	t.mu.Unlock()

	if set.to.ChatID == 0 || !hasSender || set.limiter == nil {
		return len(p), nil
	}
	if level < set.minLevel || !set.limiter.Allow() {
		return len(p), nil
	}
	msg := formatRecord(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- msg:
	default:
	}
	return len(p), nil
}

func (t *telegramSink) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.queue:
			t.mu.Lock()
			sender, to := t.sender, t.set.to
			t.mu.Unlock()
			if sender == nil || to.ChatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, telegramSendWait)
			_, _ = sender.SendText(sctx, to, msg, &transport.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

// formatRecord renders a zerolog JSON line as a short plain-text message.
func formatRecord(p []byte) string {
	var m map[string]any
	raw := strings.TrimSpace(string(p))
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, telegramMaxText)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(fmt.Sprint(m[k]), 900))
			continue
		}
		b.WriteString("\n- " + k + "=" + truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), telegramMaxText)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
