package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/domain"
)

func TestMemoryRepository_MarkExpiredOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, domain.GuestSession{ID: "s1", TableNumber: 3, StartedAt: time.Now(), Duration: time.Hour}))

	first, err := r.MarkExpired(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	again, err := r.MarkExpired(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.False(t, again)

	list, err := r.ListUnexpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryRepository_ReleaseExpiredReopensClaim(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, domain.GuestSession{ID: "s1", TableNumber: 3, StartedAt: time.Now(), Duration: time.Hour}))

	first, err := r.MarkExpired(ctx, "s1", time.Now())
	require.NoError(t, err)
	require.True(t, first)
	require.NoError(t, r.ReleaseExpired(ctx, "s1"))

	list, err := r.ListUnexpired(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	again, err := r.MarkExpired(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.True(t, again)

	assert.ErrorIs(t, r.ReleaseExpired(ctx, "missing"), domain.ErrNotFound)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	r := NewMemoryRepository()
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.MarkExpired(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepository_DuplicateCreate(t *testing.T) {
	r := NewMemoryRepository()
	s := domain.GuestSession{ID: "s1", TableNumber: 1, StartedAt: time.Now(), Duration: time.Hour}
	require.NoError(t, r.Create(context.Background(), s))
	assert.Error(t, r.Create(context.Background(), s))
}
