package emit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogEmitter_StructuredOutput(t *testing.T) {
	t.Run("emits event with all fields", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(newJSONLogger(&buf))

		emitter.Emit(Event{
			RunID:    "run-001",
			Step:     2,
			NodeID:   "researcher",
			BranchID: "b3",
			Msg:      MsgNodeEnd,
			Meta:     map[string]interface{}{"duration_ms": int64(12)},
		})

		var record map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
		}
		want := map[string]interface{}{
			"msg":         MsgNodeEnd,
			"level":       "INFO",
			"run_id":      "run-001",
			"step":        float64(2),
			"node_id":     "researcher",
			"branch_id":   "b3",
			"duration_ms": float64(12),
		}
		for k, v := range want {
			if record[k] != v {
				t.Errorf("%s = %v, want %v", k, record[k], v)
			}
		}
	})

	t.Run("omits empty node and branch", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogEmitter(newJSONLogger(&buf)).Emit(Event{RunID: "run-001", Msg: MsgRunStart})

		out := buf.String()
		if strings.Contains(out, "node_id") || strings.Contains(out, "branch_id") || strings.Contains(out, `"step"`) {
			t.Errorf("unexpected empty attributes in %s", out)
		}
	})

	t.Run("one record per event", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(newJSONLogger(&buf))
		emitter.Emit(Event{RunID: "run-001", Msg: MsgStepStart, Step: 1})
		emitter.Emit(Event{RunID: "run-001", Msg: MsgStepCommit, Step: 1})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
		}
	})
}

func TestLogEmitter_Levels(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{MsgNodeError, "ERROR"},
		{MsgRunError, "ERROR"},
		{MsgNodeStart, "DEBUG"},
		{MsgStepStart, "DEBUG"},
		{MsgFanOut, "INFO"},
		{MsgRunEnd, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogEmitter(newJSONLogger(&buf)).Emit(Event{RunID: "r", Msg: tt.msg})
			if !strings.Contains(buf.String(), `"level":"`+tt.want+`"`) {
				t.Errorf("level for %s: got %s, want %s", tt.msg, buf.String(), tt.want)
			}
		})
	}
}

func TestLogEmitter_NilLogger(t *testing.T) {
	emitter := NewLogEmitter(nil)
	if emitter.logger == nil {
		t.Fatal("expected default logger")
	}
}
