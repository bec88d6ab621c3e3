package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
)

func TestSlogLoggerWritesSortedAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("dropped", tiercache.Fields{"key": "k"})
	assert.Zero(t, buf.Len(), "debug is below the handler level")

	l.Warn("tier operation failed", tiercache.Fields{"tier": "authority", "op": "put"})
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "tier operation failed", rec["msg"])
	assert.Equal(t, "authority", rec["tier"])
	assert.Equal(t, "put", rec["op"])

	line := buf.String()
	assert.Less(t, bytes.Index([]byte(line), []byte(`"op"`)), bytes.Index([]byte(line), []byte(`"tier"`)))
}
