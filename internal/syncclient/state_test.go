package syncclient

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/domain"
)

func ev(id string, v int64, st domain.Status) domain.OrderEvent {
	return domain.OrderEvent{OrderID: id, Version: v, Status: st, ScopeRef: "s1", UpdatedAt: time.Unix(v, 0).UTC()}
}

func TestState_ApplySameVersionTwice(t *testing.T) {
	s := NewState()
	assert.True(t, s.Apply(ev("o1", 2, domain.StatusPreparing)))
	assert.False(t, s.Apply(ev("o1", 2, domain.StatusReady)))

	got, ok := s.Get("o1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPreparing, got.Status)
}

func TestState_OlderVersionAfterNewer(t *testing.T) {
	s := NewState()
	s.Apply(ev("o1", 3, domain.StatusReady))
	assert.False(t, s.Apply(ev("o1", 2, domain.StatusPreparing)))
	assert.Equal(t, int64(3), s.Version("o1"))
	assert.Equal(t, int64(0), s.Version("unknown"))
}

func TestState_ApplySnapshotReturnsChanged(t *testing.T) {
	s := NewState()
	s.Apply(ev("a", 2, domain.StatusPreparing))

	changed := s.ApplySnapshot([]domain.OrderEvent{
		ev("a", 2, domain.StatusPreparing),
		ev("b", 1, domain.StatusActive),
		ev("c", 4, domain.StatusCompleted),
	})
	require.Len(t, changed, 2)
	assert.Equal(t, "b", changed[0].OrderID)
	assert.Equal(t, "c", changed[1].OrderID)

	ids := []string{}
	for _, o := range s.Orders() {
		ids = append(ids, o.OrderID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestState_ArrivalOrderIndependent(t *testing.T) {
	events := make([]domain.OrderEvent, 0, 40)
	for v := int64(1); v <= 20; v++ {
		events = append(events, ev("o1", v, domain.StatusActive), ev("o2", v, domain.StatusActive))
	}
	rand.New(rand.NewSource(7)).Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	s := NewState()
	var wg sync.WaitGroup
	for _, e := range events {
		wg.Add(1)
		go func(e domain.OrderEvent) {
			defer wg.Done()
			s.Apply(e)
		}(e)
	}
	wg.Wait()

	assert.Equal(t, int64(20), s.Version("o1"))
	assert.Equal(t, int64(20), s.Version("o2"))
	assert.Equal(t, 2, s.Len())
}
