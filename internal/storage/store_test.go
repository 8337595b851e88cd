package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data")}, logx.Nop())
	require.NoError(t, err)
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "db", "bot.db")}, logx.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fs.Close()
		_ = sq.Close()
	})
	return map[string]Store{"file": fs, "sqlite": sq}
}

func TestStoreSubscribers(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ids, err := st.ListSubscribers(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			require.NoError(t, st.AddSubscriber(ctx, "42"))
			require.NoError(t, st.AddSubscriber(ctx, "42"))
			require.NoError(t, st.AddSubscriber(ctx, "-1001"))

			ids, err = st.ListSubscribers(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"42", "-1001"}, ids)

			ok, err := st.HasSubscriber(ctx, "42")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, st.RemoveSubscriber(ctx, "42"))
			require.NoError(t, st.RemoveSubscriber(ctx, "missing"))

			ok, err = st.HasSubscriber(ctx, "42")
			require.NoError(t, err)
			assert.False(t, ok)

			ids, err = st.ListSubscribers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"-1001"}, ids)

			assert.ErrorIs(t, st.AddSubscriber(ctx, ""), ErrInvalidID)
			assert.ErrorIs(t, st.AddSubscriber(ctx, "1\n2"), ErrInvalidID)
		})
	}
}

func TestStoreFingerprint(t *testing.T) {
	ctx := context.Background()
	fp1 := schedule.Compute(schedule.Snapshot{{Label: "a", Link: "http://x/a.pdf"}})
	fp2 := schedule.Compute(schedule.Snapshot{{Label: "b", Link: "http://x/b.pdf"}})

	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := st.LoadFingerprint(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.SaveFingerprint(ctx, fp1))
			got, ok, err := st.LoadFingerprint(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, fp1, got)

			require.NoError(t, st.SaveFingerprint(ctx, fp2))
			got, _, err = st.LoadFingerprint(ctx)
			require.NoError(t, err)
			assert.Equal(t, fp2, got)
		})
	}
}

func TestFileStoreLayoutAndTolerance(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, subscribersFile), []byte("1\r\n\r\n2\n1\n  3"), 0o600))

	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ids, err := st.ListSubscribers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	// Appending after a line without a trailing newline keeps ids separate.
	require.NoError(t, st.AddSubscriber(ctx, "4"))
	ids, err = st.ListSubscribers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)

	// Removal drops every duplicate line.
	require.NoError(t, st.RemoveSubscriber(ctx, "1"))
	raw, err := os.ReadFile(filepath.Join(dir, subscribersFile))
	require.NoError(t, err)
	assert.Equal(t, "2\n3\n4\n", string(raw))

	fp := schedule.Compute(schedule.Snapshot{{Link: "http://x/a.pdf"}})
	require.NoError(t, st.SaveFingerprint(ctx, fp))
	raw, err = os.ReadFile(filepath.Join(dir, stateFile))
	require.NoError(t, err)
	assert.Equal(t, fp.String(), string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp file left behind")
	}
}

func TestFileStoreBlankStateIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte(" \n"), 0o600))
	st, err := Open(Config{Path: dir}, logx.Nop())
	require.NoError(t, err)

	_, ok, err := st.LoadFingerprint(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.ListSubscribers(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.SaveFingerprint(context.Background(), "x"), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: t.TempDir()}, logx.Nop())
	assert.Error(t, err)
	assert.Equal(t, DriverFile, NormalizeDriver(""))
	assert.Equal(t, DriverSQLite, NormalizeDriver("SQLite3"))
}
