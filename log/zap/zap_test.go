package zap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tiercache"
)

func TestZapLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("promoted authority hit", tiercache.Fields{"key": "k", "name": "front"})
	l.Warn("tier operation failed", tiercache.Fields{"err": errors.New("down")})
	l.Info("no fields", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, map[string]any{"key": "k", "name": "front"}, entries[0].ContextMap())

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "down", entries[1].ContextMap()["err"])
	assert.Empty(t, entries[2].Context)
}
