package watch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/schedule"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

func TestRenderDigest(t *testing.T) {
	got := RenderDigest("🚨 Schedule changed:", schedule.Snapshot{
		itemA,
		{Label: "R&D <week>", Link: "http://x/c?a=1&b=2"},
	})
	want := "🚨 Schedule changed:\n\n" +
		`<a href="http://x/a.pdf">Sched A</a>` + "\n" +
		`<a href="http://x/c?a=1&amp;b=2">R&amp;D &lt;week&gt;</a>`
	assert.Equal(t, want, got)

	assert.Equal(t, `<a href="http://x/a.pdf">Sched A</a>`, RenderDigest("", schedule.Snapshot{itemA}))
}

func TestTextModeSendsDigestToEveryone(t *testing.T) {
	snd := &recordingSender{}
	fan := NewFanOut(snd, staticSubs{ids: []string{"10", "-100200"}}, nil, NotifyConfig{Header: "H"}, logx.Nop())

	rep, err := fan.Deliver(context.Background(), schedule.Snapshot{itemA, itemB})
	require.NoError(t, err)
	assert.Equal(t, Report{Kind: KindText, Recipients: 2, Delivered: 2}, rep)
	assert.Equal(t, []int64{-100200, 10}, snd.textRecipients())
	for _, m := range snd.texts {
		assert.Contains(t, m.HTML, `<a href="http://x/b.docx">Sched B</a>`)
	}
}

func manyDocs(n int) schedule.Snapshot {
	s := make(schedule.Snapshot, 0, n+1)
	for i := 1; i <= n; i++ {
		s = append(s, schedule.Item{Label: fmt.Sprintf("Week %d", i), Link: fmt.Sprintf("http://x/w%02d.pdf", i)})
	}
	// Pages are linked in the digest but never attached.
	return append(s, schedule.Item{Label: "Index", Link: "http://x/index.html"})
}

func TestDocumentModeGroupsAndCaptions(t *testing.T) {
	snd := &recordingSender{}
	dl := &fakeDownloader{fail: map[string]bool{"http://x/w03.pdf": true}}
	fan := NewFanOut(snd, staticSubs{ids: []string{"1", "2"}}, dl,
		NotifyConfig{Mode: ModeDocuments, Header: "H"}, logx.Nop())

	snap := manyDocs(12)
	rep, err := fan.Deliver(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, KindDocuments, rep.Kind)
	assert.Equal(t, 11, rep.Documents)
	assert.Equal(t, 2, rep.Delivered)
	assert.Equal(t, 12, dl.calls, "documents are downloaded once per tick, not per recipient")
	assert.Empty(t, snd.texts)

	byChat := map[int64][]sentDocs{}
	for _, d := range snd.docs {
		byChat[d.To] = append(byChat[d.To], d)
	}
	for _, chat := range []int64{1, 2} {
		groups := byChat[chat]
		require.Len(t, groups, 2)
		assert.Len(t, groups[0].Names, tgui.MaxMediaGroup)
		assert.Equal(t, []string{"w12.pdf"}, groups[1].Names)
		assert.Equal(t, "w11.pdf", groups[0].Names[9])
		assert.NotContains(t, groups[0].Names, "w03.pdf")
		assert.Equal(t, "w01.pdf", groups[0].Names[0])

		assert.Equal(t, RenderDigest("H", snap), groups[0].Caption)
		assert.Contains(t, groups[0].Caption, "index.html")
		assert.Empty(t, groups[1].Caption)
	}
}

func TestDocumentModeFallsBackToText(t *testing.T) {
	snd := &recordingSender{}
	dl := &fakeDownloader{fail: map[string]bool{"http://x/a.pdf": true, "http://x/b.docx": true}}
	fan := NewFanOut(snd, staticSubs{ids: []string{"1"}}, dl, NotifyConfig{Mode: ModeDocuments}, logx.Nop())

	rep, err := fan.Deliver(context.Background(), schedule.Snapshot{itemA, itemB})
	require.NoError(t, err)
	assert.Equal(t, KindText, rep.Kind)
	require.Len(t, snd.texts, 1)
	assert.Empty(t, snd.docs)
}

func TestDocumentModeLongDigestGoesFirstAsText(t *testing.T) {
	snap := schedule.Snapshot{itemA}
	for i := 0; i < 40; i++ {
		snap = append(snap, schedule.Item{
			Label: strings.Repeat("long label ", 3),
			Link:  fmt.Sprintf("http://x/page-%d.html", i),
		})
	}
	fan := NewFanOut(&recordingSender{}, staticSubs{}, &fakeDownloader{}, NotifyConfig{Mode: ModeDocuments}, logx.Nop())

	p, ok := fan.Compose(context.Background(), snap).(DocumentPayload)
	require.True(t, ok)
	assert.Empty(t, p.Caption)
	assert.Equal(t, RenderDigest("", snap), p.Preface)
	assert.Equal(t, 1, p.Documents())

	snd := &recordingSender{}
	fan = NewFanOut(snd, staticSubs{ids: []string{"5"}}, &fakeDownloader{}, NotifyConfig{Mode: ModeDocuments}, logx.Nop())
	_, err := fan.Deliver(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, snd.texts, 1)
	require.Len(t, snd.docs, 1)
	assert.Empty(t, snd.docs[0].Caption)
}

func TestFailedRecipientDoesNotAffectOthers(t *testing.T) {
	snd := &recordingSender{fail: map[int64]bool{2: true}}
	fan := NewFanOut(snd, staticSubs{ids: []string{"1", "2", "3"}}, &fakeDownloader{},
		NotifyConfig{Mode: ModeDocuments, Workers: 1}, logx.Nop())

	rep, err := fan.Deliver(context.Background(), schedule.Snapshot{itemA, itemB})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Delivered)
	assert.Equal(t, 1, rep.Failed)
	assert.Len(t, snd.docs, 2)
}

func TestChunkDocuments(t *testing.T) {
	assert.Nil(t, chunkDocuments(nil, 10))

	docs := make([]transport.Document, 21)
	for i := range docs {
		docs[i].FileName = fmt.Sprintf("%d.pdf", i)
	}
	groups := chunkDocuments(docs, 10)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 10)
	assert.Len(t, groups[1], 10)
	assert.Equal(t, "20.pdf", groups[2][0].FileName)

	// Oversized group sizes are clamped by the caller; zero means the
	// platform limit.
	assert.Len(t, chunkDocuments(docs, 0), 3)
}

// stallingDownloader holds every download until ctx is done.
type stallingDownloader struct{}

func (stallingDownloader) Download(ctx context.Context, _ schedule.Item) (transport.Document, error) {
	<-ctx.Done()
	return transport.Document{}, ctx.Err()
}

func TestSendsSurviveExpiredTickDeadline(t *testing.T) {
	snd := &recordingSender{}
	fan := NewFanOut(snd, staticSubs{ids: []string{"1", "2"}}, stallingDownloader{},
		NotifyConfig{Mode: ModeDocuments, Header: "H", SendTimeout: time.Second}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep, err := fan.Deliver(ctx, schedule.Snapshot{itemA})
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "downloads used up the deadline")

	assert.Equal(t, KindText, rep.Kind)
	assert.Equal(t, 2, rep.Delivered)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, []int64{1, 2}, snd.textRecipients())
}

func TestSendsStopWhenCanceled(t *testing.T) {
	snd := &recordingSender{}
	fan := NewFanOut(snd, staticSubs{ids: []string{"1", "2"}}, nil, NotifyConfig{Header: "H"}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := fan.Deliver(ctx, schedule.Snapshot{itemA})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	assert.Empty(t, snd.textRecipients())
}
