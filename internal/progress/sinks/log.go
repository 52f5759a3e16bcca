package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

// LogSink emits structured logs for every presenter event, baseline included.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. Connection
// errors are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("session_id", evt.SessionUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Float64("progress", evt.Progress),
			zap.String("style", string(evt.Style)),
			zap.String("text", evt.Text),
		}
		if evt.Stage == progress.StageEstimate {
			fields = append(fields, zap.Duration("eta", evt.ETA))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageConnectionError {
			s.logger.Warn("verification progress unavailable", fields...)
			continue
		}
		s.logger.Info("verification progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
