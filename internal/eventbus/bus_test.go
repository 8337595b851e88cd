package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	ticks, unsubTicks := b.Subscribe(4, TickChanged)
	defer unsubTicks()

	b.Publish(Event{Type: TickStarted})
	b.Publish(Event{Type: TickChanged, Data: "x"})

	assert.Equal(t, TickStarted, (<-all).Type)
	got := <-all
	assert.Equal(t, TickChanged, got.Type)
	assert.False(t, got.Time.IsZero())

	ev := <-ticks
	assert.Equal(t, "x", ev.Data)
	assert.Len(t, ticks, 0)
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TickStarted})
	b.Publish(Event{Type: TickStarted})
	b.Publish(Event{Type: TickStarted})
	assert.Equal(t, uint64(2), b.Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, open := <-ch
	require.False(t, open)
	b.Publish(Event{Type: TickFailed}) // must not panic
}
