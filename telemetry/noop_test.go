package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNoopImplementationsDoNotPanic(t *testing.T) {
	ctx := context.Background()

	l := NewNoopLogger()
	l.Debug(ctx, "msg", "k", "v")
	l.Info(ctx, "msg")
	l.Warn(ctx, "msg", "k", 1)
	l.Error(ctx, "msg")

	m := NewNoopMetrics()
	m.IncCounter("c", 1, "tag", "v")
	m.RecordTimer("t", time.Second)
	m.RecordGauge("g", 1.0)

	tr := NewNoopTracer()
	spanCtx, span := tr.Start(ctx, "op")
	span.AddEvent("ev")
	span.RecordError(nil)
	span.End()
	_ = tr.Span(spanCtx)
}
