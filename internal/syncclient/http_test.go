package syncclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/common/httpx"
	"restaurant-sync/internal/domain"
)

func TestClient_SnapshotAndErrors(t *testing.T) {
	expires := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.PathValue("id") == "gone" {
			httpx.WriteError(w, &domain.SessionExpiredError{SessionID: "gone", ExpiresAt: expires})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, []domain.OrderEvent{ev("o1", 3, domain.StatusReady)})
	})
	mux.HandleFunc("POST /api/v1/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, &domain.TransitionError{Code: domain.TerminalState, From: domain.StatusCompleted, To: domain.StatusActive})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, "s1", "tok")
	evs, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, int64(3), evs[0].Version)

	_, err = c.SubmitStatus(context.Background(), "o1", domain.StatusActive)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.TerminalState, te.Code)

	gone := NewClient(srv.URL, "gone", "tok")
	_, err = gone.Snapshot(context.Background())
	var se *domain.SessionExpiredError
	require.ErrorAs(t, err, &se)
	assert.True(t, expires.Equal(se.ExpiresAt))

	srv.Close()
	_, err = c.Snapshot(context.Background())
	assert.True(t, domain.IsTransport(err))
}

func TestWSPushSource_Endpoint(t *testing.T) {
	p := NewWSPushSource("https://sync.example/", "a b", "t")
	assert.Equal(t, "wss://sync.example/api/v1/ws?session_id=a+b", p.endpoint())
	p = NewWSPushSource("http://localhost:8080", "s1", "t")
	assert.Equal(t, "ws://localhost:8080/api/v1/ws?session_id=s1", p.endpoint())
}
