package interceptors

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftrun/weft"
)

// Tracing returns an Interceptor that opens a span named spanName around
// every intercepted segment, tagging it with the owning Execution's id and
// the segment's ExecType. It uses the global otel TracerProvider; callers
// that want a specific tracer should install it via
// otel.SetTracerProvider before starting any Executions.
func Tracing(spanName string) weft.Interceptor {
	if spanName == "" {
		spanName = "weft.segment"
	}
	return &tracingInterceptor{
		tracer:   otel.Tracer("github.com/weftrun/weft"),
		spanName: spanName,
	}
}

type tracingInterceptor struct {
	tracer   trace.Tracer
	spanName string
}

func (t *tracingInterceptor) Intercept(execType weft.ExecType, continuation func()) {
	attrs := []attribute.KeyValue{attribute.String("weft.exec_type", execType.String())}
	if e, ok := weft.CurrentOpt(); ok {
		attrs = append(attrs, attribute.String("weft.execution_id", e.ID()))
	}

	_, span := t.tracer.Start(context.Background(), t.spanName, trace.WithAttributes(attrs...))
	defer span.End()
	continuation()
}
