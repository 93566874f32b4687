package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
)

// LogSink writes alerts to the structured log. Default sink when no
// transport is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a log-only delivery sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "log_sink").Logger()}
}

// Deliver logs the alert.
func (s *LogSink) Deliver(_ context.Context, subscriberID string, a alert.Alert) error {
	s.logger.Info().
		Str("subscriber", subscriberID).
		Str("alert", a.ID).
		Str("kind", string(a.Kind)).
		Str("contract", a.ContractID).
		Float64("confidence", a.Confidence).
		Str("priority", a.Priority.String()).
		Msg("ALERT")
	return nil
}

var _ alert.Sink = (*LogSink)(nil)
