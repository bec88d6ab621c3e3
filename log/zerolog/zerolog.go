package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/tiercache"
)

var _ tiercache.Logger = Logger{}

// Logger adapts a zerolog.Logger. Fields go through Event.Fields, so an
// error value is rendered with zerolog's error marshaler.
type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f tiercache.Fields) { z.L.Debug().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Info(msg string, f tiercache.Fields)  { z.L.Info().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Warn(msg string, f tiercache.Fields)  { z.L.Warn().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Error(msg string, f tiercache.Fields) { z.L.Error().Fields(map[string]any(f)).Msg(msg) }
