package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "schedbot "+version))
}

func TestSubscribersRoundTrip(t *testing.T) {
	t.Setenv("SCHEDBOT_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("SCHEDBOT_LOG_LEVEL", "error")
	envFile := filepath.Join(t.TempDir(), "missing.env")

	_, err := execute(t, "--env-file", envFile, "subscribers", "add", "1")
	require.Error(t, err, "an explicit env file must exist")

	_, err = execute(t, "subscribers", "add", "--", "42", "-100500")
	require.NoError(t, err)
	_, err = execute(t, "subscribers", "add", "not-a-number")
	require.Error(t, err)

	out, err := execute(t, "subscribers", "list")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"42", "-100500"}, strings.Fields(out))

	_, err = execute(t, "subs", "rm", "42")
	require.NoError(t, err)
	out, err = execute(t, "subscribers", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"-100500"}, strings.Fields(out))
}

func TestRunRequiresToken(t *testing.T) {
	t.Setenv("SCHEDBOT_DATA_DIR", t.TempDir())
	t.Setenv("SCHEDBOT_URL", "https://uni.test/schedule")
	t.Setenv("SCHEDBOT_XPATH", "//a")
	t.Setenv("TOKEN", "")
	t.Setenv("SCHEDBOT_TOKEN", "")

	_, err := execute(t, "tick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}
