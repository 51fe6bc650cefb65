package emit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns executor events into OpenTelemetry spans, one trace per run.
//
// run_start opens a "stategraph.run" span that stays open until run_end or
// run_error, which ends it (with an Error status on failure). Every other
// event becomes a short span named after event.Msg, child of its run span.
// Events of a run without a run_start become root spans.
//
// Span attributes: stategraph.run_id, stategraph.step, stategraph.node_id,
// stategraph.branch_id and every event.Meta field.
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	emitter := emit.NewOTelEmitter(tp.Tracer("stategraph"))
type OTelEmitter struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]trace.Span
}

// NewOTelEmitter creates an OTelEmitter recording spans with tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer, runs: make(map[string]trace.Span)}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	switch event.Msg {
	case MsgRunStart:
		_, span := o.tracer.Start(context.Background(), "stategraph.run")
		setAttributes(span, event)
		o.mu.Lock()
		o.runs[event.RunID] = span
		o.mu.Unlock()
		return

	case MsgRunEnd, MsgRunError:
		o.mu.Lock()
		span, ok := o.runs[event.RunID]
		delete(o.runs, event.RunID)
		o.mu.Unlock()
		if ok {
			setAttributes(span, event)
			markError(span, event)
			span.End()
			return
		}
	}

	ctx := context.Background()
	o.mu.Lock()
	if parent, ok := o.runs[event.RunID]; ok {
		ctx = trace.ContextWithSpan(ctx, parent)
	}
	o.mu.Unlock()

	_, span := o.tracer.Start(ctx, event.Msg)
	setAttributes(span, event)
	markError(span, event)
	span.End()
}

// Open returns the number of runs whose span has not been ended yet.
func (o *OTelEmitter) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

func markError(span trace.Span, event Event) {
	if msg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// metaKeys renames well-known Meta keys into the stategraph namespace.
var metaKeys = map[string]string{
	"duration_ms": "stategraph.node.latency_ms",
	"width":       "stategraph.fanout.width",
	"branches":    "stategraph.step.branches",
	"steps":       "stategraph.run.steps",
	"successors":  "stategraph.join.successors",
}

func setAttributes(span trace.Span, event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("stategraph.run_id", event.RunID),
		attribute.Int("stategraph.step", event.Step),
		attribute.String("stategraph.node_id", event.NodeID),
		attribute.String("stategraph.branch_id", event.BranchID),
	}
	for key, value := range event.Meta {
		if renamed, ok := metaKeys[key]; ok {
			key = renamed
		}
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case time.Duration:
			attrs = append(attrs, attribute.Int64(key, v.Milliseconds()))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	span.SetAttributes(attrs...)
}
