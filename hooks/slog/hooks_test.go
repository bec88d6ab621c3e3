package sloghook

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/internal/util"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestHooksRedactKeysByDefault(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})

	h.Promoted("user:42")
	h.PinEnforced("user:42")

	recs := records(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "tiercache.promoted", recs[0]["msg"])
	assert.Equal(t, util.ShortHash("user:42"), recs[0]["key"])
	assert.Equal(t, "WARN", recs[1]["level"])
	assert.NotContains(t, buf.String(), "user:42")
}

func TestHooksCustomRedactor(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{Redact: func(k string) string { return "<" + k + ">" }})

	h.AdmissionRejected("k")

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "<k>", recs[0]["key"])
}

func TestHooksSampling(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{PromotedEvery: 3})

	for i := 0; i < 9; i++ {
		h.Promoted("k")
	}
	assert.Len(t, records(t, &buf), 3)
}

func TestHooksTierFailure(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})

	h.TierFailure("put", "authority", errors.New("down"))

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "ERROR", recs[0]["level"])
	assert.Equal(t, "put", recs[0]["op"])
	assert.Equal(t, "authority", recs[0]["tier"])
	assert.Equal(t, "down", recs[0]["err"])
}

func TestHooksNilLogger(t *testing.T) {
	h := New(nil, Options{})
	assert.NotPanics(t, func() {
		h.Promoted("k")
		h.AdmissionRejected("k")
		h.PinEnforced("k")
		h.TierFailure("get", "accelerator", errors.New("x"))
	})
}
