package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in    string
		kind  SpecKind
		every time.Duration
		cron  string
	}{
		{in: "3m", kind: SpecInterval, every: 3 * time.Minute},
		{in: "00:03", kind: SpecInterval, every: 3 * time.Minute},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute},
		{in: "every: 90s", kind: SpecInterval, every: 90 * time.Second},
		{in: "*/3 * * * *", kind: SpecCron, cron: "*/3 * * * *"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly"},
		{in: "cron:0 8 * * 1-5", kind: SpecCron, cron: "0 8 * * 1-5"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSchedule(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.every, got.Every)
			assert.Equal(t, tc.cron, got.Cron)
		})
	}

	for _, bad := range []string{"", "soon", "0s", "-1m", "01:75", "interval:"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "@every 3m0s", ParsedSpec{Kind: SpecInterval, Every: 3 * time.Minute}.String())
}

func TestAddRejectsBadCron(t *testing.T) {
	s := New(Config{}, logx.Nop())
	err := s.Add("x", "cron:61 * * * *", 0, func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Error(t, s.Add("", "1m", 0, func(context.Context) error { return nil }))
}

func TestIntervalRunsAndSkipsOverlap(t *testing.T) {
	s := New(Config{NoSpread: true}, logx.Nop())
	release := make(chan struct{})
	var runs atomic.Int32
	// The job outlives several 1s periods so later triggers must be skipped.
	require.NoError(t, s.Add("tick", "every:20ms", 10*time.Second, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// cron.Every rounds to whole seconds, so wait for the first trigger.
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.RunNow("tick"), ErrBusy)
	require.Eventually(t, func() bool { return s.Snapshot()[0].Skipped > 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
}

func TestRunNowRecordsResult(t *testing.T) {
	s := New(Config{}, logx.Nop())
	require.NoError(t, s.Add("job", "1h", time.Second, func(context.Context) error {
		return errors.New("site down")
	}))
	assert.ErrorIs(t, s.RunNow("nope"), ErrUnknownJob)

	require.NoError(t, s.RunNow("job"))
	require.Eventually(t, func() bool { return s.Snapshot()[0].Runs == 1 }, time.Second, 5*time.Millisecond)

	info := s.Snapshot()[0]
	assert.Equal(t, "job", info.Name)
	assert.Equal(t, "site down", info.LastErr)
	assert.Equal(t, "@every 1h0m0s", info.Spec)
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(Config{}, logx.Nop())
	require.NoError(t, s.Add("p", "1h", 0, func(context.Context) error { panic("bad") }))
	require.NoError(t, s.RunNow("p"))
	require.Eventually(t, func() bool { return s.Snapshot()[0].Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Snapshot()[0].LastErr, "panic: bad")
}

func TestSpreadDelaysFirstRun(t *testing.T) {
	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(3*time.Minute, now)
	assert.Less(t, jitter, maxStartupSpread)
	first := sched.Next(now)
	assert.Equal(t, now.Add(3*time.Minute+jitter), first)
}
