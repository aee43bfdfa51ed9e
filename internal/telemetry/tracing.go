package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"asteriskgui/internal/ami"
	"asteriskgui/internal/config"
)

const tracerName = "asteriskgui"

type ShutdownFunc = func(context.Context) error

// Init installs an OTLP/HTTP tracer provider. Without an endpoint tracing
// stays on the global no-op provider.
func Init(ctx context.Context, cfg config.TracingConfig) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// HTTP wraps the API router in server spans.
func HTTP(h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Commander opens a client span around each manager command.
func Commander(next ami.Commander, tp trace.TracerProvider) ami.Commander {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracedCommander{next: next, tracer: tp.Tracer(tracerName)}
}

type tracedCommander struct {
	next   ami.Commander
	tracer trace.Tracer
}

func (c *tracedCommander) SendCommand(ctx context.Context, command string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ami.command",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ami.command", command)))
	defer span.End()

	out, err := c.next.SendCommand(ctx, command)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var cmdErr *ami.CommandError
		if errors.As(err, &cmdErr) {
			span.SetAttributes(attribute.String("ami.message", cmdErr.Message))
		}
	}
	return out, err
}

func (c *tracedCommander) State() ami.State { return c.next.State() }
