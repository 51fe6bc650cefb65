package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter implements Emitter by writing each event as one structured log
// record through a *slog.Logger.
//
// The record message is the event name. Run, step, node and branch become
// attributes, followed by the event metadata in sorted key order. Error events
// are logged at ERROR, per-node start events at DEBUG and everything else at INFO.
//
// Example text output (slog.TextHandler):
//
//	level=INFO msg=node_end run_id=run-001 step=2 node_id=researcher branch_id=b3 duration_ms=12
//
// Usage:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit writes event as a single log record.
func (l *LogEmitter) Emit(event Event) {
	attrs := make([]slog.Attr, 0, 4+len(event.Meta))
	attrs = append(attrs, slog.String("run_id", event.RunID))
	if event.Step > 0 {
		attrs = append(attrs, slog.Int("step", event.Step))
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	if event.BranchID != "" {
		attrs = append(attrs, slog.String("branch_id", event.BranchID))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(context.Background(), levelFor(event.Msg), event.Msg, attrs...)
}

func levelFor(msg string) slog.Level {
	switch msg {
	case MsgNodeError, MsgRunError:
		return slog.LevelError
	case MsgNodeStart, MsgStepStart:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
