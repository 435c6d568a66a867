package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/domain"
)

func sample(id, session string, at time.Time) domain.Order {
	return domain.Order{
		ID: id, SessionID: session, TableNumber: 4,
		Items:  []domain.OrderItem{{Name: "soup", Quantity: 2, Price: 4}},
		Status: domain.StatusActive, Version: 1, CreatedAt: at, UpdatedAt: at,
	}
}

func TestMemory_CreateGetList(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()

	require.NoError(t, r.Create(ctx, sample("b", "s1", t0.Add(time.Second)), "guest"))
	require.NoError(t, r.Create(ctx, sample("a", "s1", t0), "guest"))
	require.NoError(t, r.Create(ctx, sample("c", "s2", t0), "guest"))
	assert.Error(t, r.Create(ctx, sample("a", "s1", t0), "guest"))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	got.Items[0].Name = "mutated"
	again, _ := r.Get(ctx, "a")
	assert.Equal(t, "soup", again.Items[0].Name)

	list, err := r.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	_, err = r.Get(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemory_Transition(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()
	require.NoError(t, r.Create(ctx, sample("a", "s1", t0), "guest"))

	next, err := r.Transition(ctx, "a", "staff", func(cur domain.Order) (domain.Order, error) {
		return domain.Validate(cur, domain.StatusPreparing, t0.Add(time.Minute))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)

	boom := errors.New("boom")
	_, err = r.Transition(ctx, "a", "staff", func(domain.Order) (domain.Order, error) { return domain.Order{}, boom })
	assert.ErrorIs(t, err, boom)

	_, err = r.Transition(ctx, "a", "staff", func(cur domain.Order) (domain.Order, error) {
		cur.Version += 2
		return cur, nil
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	tl, err := r.Timeline(ctx, "a")
	require.NoError(t, err)
	require.Len(t, tl, 2)
	assert.Equal(t, domain.StatusPreparing, tl[1].Status)

	_, err = r.Timeline(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
