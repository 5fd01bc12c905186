package interceptors

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingInterceptor instruments RPCs with OpenTelemetry spans.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor creates a tracing interceptor.
func NewTracingInterceptor(tracer trace.Tracer) *TracingInterceptor {
	if tracer == nil {
		tracer = otel.Tracer("spin-cashback/interceptors")
	}
	return &TracingInterceptor{tracer: tracer}
}

// WrapUnary implements connect.Interceptor.
func (i *TracingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, span := i.start(ctx, req.Spec().Procedure)
		defer span.End()

		resp, err := next(ctx, req)
		finish(span, err)
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TracingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TracingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, span := i.start(ctx, conn.Spec().Procedure)
		defer span.End()

		err := next(ctx, conn)
		finish(span, err)
		return err
	}
}

func (i *TracingInterceptor) start(ctx context.Context, procedure string) (context.Context, trace.Span) {
	ctx, span := i.tracer.Start(ctx, procedure, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("rpc.system", "connect"),
		attribute.String("rpc.service", serviceFromProcedure(procedure)),
		attribute.String("rpc.method", methodFromProcedure(procedure)),
	)
	if id := RequestIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("request.id", id))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("rpc.connect.error_code", connect.CodeOf(err).String()))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "ok")
}

// serviceFromProcedure turns "/cashback.v1.CashbackService/BuildReport" into
// "cashback.v1.CashbackService".
func serviceFromProcedure(procedure string) string {
	procedure = strings.TrimPrefix(procedure, "/")
	if i := strings.LastIndex(procedure, "/"); i > 0 {
		return procedure[:i]
	}
	return procedure
}

func methodFromProcedure(procedure string) string {
	if i := strings.LastIndex(procedure, "/"); i >= 0 {
		return procedure[i+1:]
	}
	return procedure
}
