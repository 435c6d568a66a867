package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/app/syncserver"
	"restaurant-sync/internal/common/config"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/testutil"
)

func startServer(t *testing.T) (*httptest.Server, *testutil.FakeClock) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	clk := testutil.NewFakeClock(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	app, err := syncserver.New(context.Background(), cfg, clk)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv, clk
}

func newSession(t *testing.T, base string) domain.CreateSessionResponse {
	t.Helper()
	resp, err := http.Post(base+"/api/v1/sessions", "application/json", bytes.NewBufferString(`{"table_number":7}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out domain.CreateSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv, _ := startServer(t)
	sess := newSession(t, srv.URL)
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			BaseURL:   srv.URL,
			SessionID: sess.SessionID,
			Token:     sess.Token,
			Realtime:  true,
			Interval:  time.Hour,
			Logger:    logger.NewWithWriter("test", out),
		})
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "watch_started") },
		3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestRun_ReturnsWhenSessionExpires(t *testing.T) {
	srv, clk := startServer(t)
	sess := newSession(t, srv.URL)
	clk.Advance(4 * time.Hour)
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), Options{
			BaseURL:   srv.URL,
			SessionID: sess.SessionID,
			Token:     sess.Token,
			Interval:  time.Hour,
			Logger:    logger.NewWithWriter("test", out),
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch kept running after session expiry")
	}
	assert.Contains(t, out.String(), "session_expired")
}
