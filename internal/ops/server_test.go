package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "schedbot/pkg/logx"
)

func status(context.Context) (any, error) {
	return map[string]any{"subscribers": 3}, nil
}

func get(t *testing.T, h http.Handler, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEndpoints(t *testing.T) {
	s := New(Config{Enabled: true}, status, logx.Nop())
	h := s.Handler()

	rec := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, h, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body["subscribers"])

	// pprof is opt-in.
	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/pprof/", "").Code)
}

func TestHandlerPprof(t *testing.T) {
	s := New(Config{Enabled: true, Pprof: true}, status, logx.Nop())
	rec := get(t, s.Handler(), "/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerToken(t *testing.T) {
	s := New(Config{Enabled: true, Token: "s3cret"}, status, logx.Nop())
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/status", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/status", "s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz?token=nope", "").Code)
}

func TestStatusError(t *testing.T) {
	s := New(Config{Enabled: true}, func(context.Context) (any, error) {
		return nil, errors.New("store down")
	}, logx.Nop())
	rec := get(t, s.Handler(), "/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartServeStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, status, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(b))

	s.Stop(context.Background())
	assert.Empty(t, s.Addr())
	assert.Nil(t, s.Supervisor())
}

func TestStartRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, status, logx.Nop())
	assert.ErrorIs(t, s.Start(context.Background()), errInsecureBind)
	assert.Nil(t, s.Supervisor())
}

// within fails the test when fn does not return in d.
func within(t *testing.T, d time.Duration, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", name, d)
	}
}

func TestStartAndReconfigureReturnPromptly(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, status, logx.Nop())
	within(t, 2*time.Second, "Start", func() {
		assert.NoError(t, s.Start(context.Background()))
	})
	first := s.Addr()
	require.NotEmpty(t, first)

	within(t, 3*time.Second, "Reconfigure", func() {
		s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	})
	require.NotEmpty(t, s.Addr())
	assert.NotNil(t, s.Supervisor())

	resp, err := http.Get("http://" + s.Addr() + "/healthz?token=t")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	within(t, 3*time.Second, "Reconfigure(disabled)", func() {
		s.Reconfigure(context.Background(), Config{Enabled: false})
	})
	assert.Empty(t, s.Addr())
}
