package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Debug("promoted authority hit", tiercache.Fields{"key": "k"})
	l.Error("tier operation failed", tiercache.Fields{"err": errors.New("down"), "tier": "authority"})

	require.Len(t, hook.Entries, 2)
	assert.Equal(t, logrus.DebugLevel, hook.Entries[0].Level)
	assert.Equal(t, "k", hook.Entries[0].Data["key"])

	last := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.EqualError(t, last.Data[logrus.ErrorKey].(error), "down")
	assert.Equal(t, "authority", last.Data["tier"])
}
