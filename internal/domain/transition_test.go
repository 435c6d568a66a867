package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(status Status, version int64) Order {
	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return Order{
		ID:          "ord-1",
		SessionID:   "sess-1",
		TableNumber: 12,
		Items:       []OrderItem{{Name: "margherita", Quantity: 1, Price: 11.5}},
		Status:      status,
		CreatedAt:   t0,
		UpdatedAt:   t0,
		Version:     version,
	}
}

func TestValidate_EveryEdgeAccepted(t *testing.T) {
	edges := [][2]Status{
		{StatusActive, StatusPreparing},
		{StatusPreparing, StatusReady},
		{StatusReady, StatusCompleted},
		{StatusActive, StatusCancelled},
		{StatusPreparing, StatusCancelled},
	}
	now := time.Date(2026, 3, 1, 18, 5, 0, 0, time.UTC)
	for _, e := range edges {
		t.Run(string(e[0])+"->"+string(e[1]), func(t *testing.T) {
			in := newOrder(e[0], 4)
			out, err := Validate(in, e[1], now)
			require.NoError(t, err)
			assert.Equal(t, e[1], out.Status)
			assert.Equal(t, int64(5), out.Version)
			assert.Equal(t, now, out.UpdatedAt)
			assert.Equal(t, in.CreatedAt, out.CreatedAt)
			assert.Equal(t, e[0], in.Status, "input must not be mutated")
		})
	}
}

func TestValidate_EveryNonEdgeRejected(t *testing.T) {
	now := time.Now()
	for _, from := range Statuses {
		for _, to := range Statuses {
			if CanTransition(from, to) {
				continue
			}
			_, err := Validate(newOrder(from, 1), to, now)
			require.Error(t, err, "%s -> %s", from, to)

			var te *TransitionError
			require.ErrorAs(t, err, &te)
			if from.Terminal() {
				assert.Equal(t, TerminalState, te.Code, "%s -> %s", from, to)
			} else {
				assert.Equal(t, InvalidTransition, te.Code, "%s -> %s", from, to)
			}
		}
	}
}

func TestValidate_ReadyToActiveIsInvalid(t *testing.T) {
	_, err := Validate(newOrder(StatusReady, 3), StatusActive, time.Now())
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, InvalidTransition, te.Code)
	assert.Equal(t, ReasonInvalidTransition, te.Reason())
}

func TestValidate_UnknownStatus(t *testing.T) {
	_, err := Validate(newOrder(StatusActive, 1), Status("eaten"), time.Now())
	assert.True(t, IsValidation(err))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, s)

	_, err = ParseStatus("READY")
	assert.True(t, IsValidation(err))
}

func TestAllowedNext_ReturnsCopy(t *testing.T) {
	next := AllowedNext(StatusActive)
	require.Len(t, next, 2)
	next[0] = StatusCompleted
	assert.Equal(t, []Status{StatusPreparing, StatusCancelled}, AllowedNext(StatusActive))
	assert.Empty(t, AllowedNext(StatusCompleted))
}
