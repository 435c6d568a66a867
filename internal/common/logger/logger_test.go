package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestLogger_InfoFields(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("sync-server", &buf)
	lg.Info("order_published", map[string]any{"scope": "s1", "subscribers": 2})

	m := decode(t, &buf)
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "sync-server", m["service"])
	assert.Equal(t, "order_published", m["action"])
	assert.Equal(t, "order_published", m["message"])
	assert.Equal(t, "s1", m["scope"])
	assert.EqualValues(t, 2, m["subscribers"])
	assert.Contains(t, m, "timestamp")
	assert.Contains(t, m, "hostname")
}

func TestLogger_ErrorCarriesCause(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("sync-server", &buf)
	lg.Error("publish_failed", errors.New("broker gone"), nil)

	m := decode(t, &buf)
	assert.Equal(t, "ERROR", m["level"])
	errObj, ok := m["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "broker gone", errObj["msg"])
}

func TestLogger_DebugSuppressedAtInfo(t *testing.T) {
	SetLevel("info")
	t.Cleanup(func() { SetLevel("info") })

	var buf bytes.Buffer
	lg := NewWithWriter("sync-server", &buf)
	lg.Debug("tick", nil)
	assert.Zero(t, buf.Len())

	SetLevel("debug")
	lg.Debug("tick", nil)
	assert.NotZero(t, buf.Len())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("watch", &buf).With(map[string]any{"session_id": "s9"})
	lg.Info("snapshot_applied", nil)

	m := decode(t, &buf)
	assert.Equal(t, "s9", m["session_id"])
}
