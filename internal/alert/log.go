package alert

import (
	"context"
	"log/slog"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// LogSink writes alerts to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Name returns the sink identifier.
func (s *LogSink) Name() string { return "log" }

// Send logs the alert at a level matching its severity.
func (s *LogSink) Send(ctx context.Context, alert types.Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case types.AlertLevelError:
		level = slog.LevelError
	case types.AlertLevelWarning:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, alert.Message,
		"category", alert.Category,
		"studentId", alert.StudentID,
		"subjectId", alert.SubjectID,
		"details", alert.Details,
	)
	return nil
}
