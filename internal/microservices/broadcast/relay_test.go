package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

type published struct {
	key  string
	body []byte
}

type fakeBus struct {
	mu      sync.Mutex
	out     []published
	failPub error

	deliveries chan amqp.Delivery
	keys       []string
	cancelled  bool
}

func (f *fakeBus) Publish(_ context.Context, _, key string, body []byte, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub != nil {
		return f.failPub
	}
	f.out = append(f.out, published{key: key, body: body})
	return nil
}

func (f *fakeBus) ConsumeExclusive(_ string, keys []string, _ string, _ int) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = keys
	return f.deliveries, nil
}

func (f *fakeBus) Cancel(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	return nil
}

type ackRecorder struct {
	mu    sync.Mutex
	acks  int
	nacks []bool // requeue flag per nack
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, requeue)
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func (a *ackRecorder) counts() (int, []bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, append([]bool(nil), a.nacks...)
}

func newTestRelay(bus *fakeBus, b *Broadcaster) *Relay {
	return NewRelay(bus, bus, "order_events", "sync-test", 10, b, logger.NewWithWriter("test", io.Discard))
}

func TestRelay_PublishRoutingKeys(t *testing.T) {
	bus := &fakeBus{}
	r := newTestRelay(bus, newTestBroadcaster(4))
	ctx := context.Background()

	require.NoError(t, r.PublishOrder(ctx, orderEvent("sess-1", "o1", 2)))
	require.NoError(t, r.PublishExpired(ctx, domain.SessionExpiredNotice{SessionID: "sess-1"}))

	require.Len(t, bus.out, 2)
	assert.Equal(t, "session.sess-1", bus.out[0].key)
	assert.Equal(t, "expired.sess-1", bus.out[1].key)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(bus.out[0].body, &env))
	assert.Equal(t, domain.EnvelopeOrder, env.Type)
	assert.Equal(t, int64(2), env.Order.Version)
}

func TestRelay_PublishFailureIsTransport(t *testing.T) {
	bus := &fakeBus{failPub: errors.New("channel closed")}
	r := newTestRelay(bus, newTestBroadcaster(4))

	err := r.PublishOrder(context.Background(), orderEvent("s", "o1", 2))
	assert.True(t, domain.IsTransport(err))
}

func TestRelay_HandleRoutesToBroadcaster(t *testing.T) {
	b := newTestBroadcaster(4)
	c := newFakeConn("s1")
	sub, err := b.Subscribe("s1", c)
	require.NoError(t, err)
	r := newTestRelay(&fakeBus{}, b)

	body, _ := json.Marshal(domain.OrderEnvelope(orderEvent("s1", "o1", 2)))
	require.NoError(t, r.handle("session.s1", body))

	body, _ = json.Marshal(domain.ExpiredEnvelope(domain.SessionExpiredNotice{SessionID: "s1"}))
	require.NoError(t, r.handle("expired.s1", body))
	waitDone(t, sub)

	got := c.received()
	require.Len(t, got, 2)
	assert.Equal(t, domain.EnvelopeSessionExpired, got[1].Type)
}

func TestRelay_HandleRejectsGarbage(t *testing.T) {
	r := newTestRelay(&fakeBus{}, newTestBroadcaster(4))

	assert.ErrorIs(t, r.handle("session.x", []byte("{not json")), ErrDLQ)

	body, _ := json.Marshal(domain.ExpiredEnvelope(domain.SessionExpiredNotice{SessionID: "x"}))
	assert.ErrorIs(t, r.handle("session.x", body), ErrDLQ)
}

func TestRelay_RunAcksAndStops(t *testing.T) {
	bus := &fakeBus{deliveries: make(chan amqp.Delivery, 4)}
	b := newTestBroadcaster(4)
	r := newTestRelay(bus, b)
	ack := &ackRecorder{}

	good, _ := json.Marshal(domain.OrderEnvelope(orderEvent("s1", "o1", 2)))
	bus.deliveries <- amqp.Delivery{Acknowledger: ack, RoutingKey: "session.s1", Body: good}
	bus.deliveries <- amqp.Delivery{Acknowledger: ack, RoutingKey: "session.s1", Body: []byte("nope")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		acks, nacks := ack.counts()
		return acks == 1 && len(nacks) == 1
	}, time.Second, 5*time.Millisecond)
	_, nacks := ack.counts()
	assert.False(t, nacks[0], "garbage must not be requeued")

	cancel()
	require.NoError(t, <-done)
	assert.True(t, bus.cancelled)
	assert.ElementsMatch(t, []string{"session.*", "expired.*"}, bus.keys)
}
