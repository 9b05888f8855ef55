// Package telemetry provides OpenTelemetry tracing and metrics for kvrpc calls.
//
// ServerMiddleware extracts the caller's trace context from the request headers and
// records a server span plus request metrics around each dispatch.
// ClientMiddleware starts a client span and injects its context into the outgoing
// headers.
//
//	srv.Use(telemetry.ServerMiddleware(telemetry.DefaultConfig()))
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/robert-cronin/kvrpc/message"
	"github.com/robert-cronin/kvrpc/middleware"
)

const instrumentationName = "kvrpc"

// Config configures instrumentation.
type Config struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator defaults to otel.GetTextMapPropagator().
	Propagator    propagation.TextMapPropagator
	EnableTracing bool
	EnableMetrics bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

func DefaultConfig() Config {
	return Config{
		EnableTracing: true,
		EnableMetrics: true,
	}
}

func (cfg *Config) resolve() {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
}

type instruments struct {
	cfg      Config
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(cfg Config, side string) *instruments {
	cfg.resolve()
	in := &instruments{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		in.requests, _ = meter.Int64Counter("rpc."+side+".requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		in.duration, _ = meter.Float64Histogram("rpc."+side+".duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
	}
	return in
}

func callAttributes(req *message.Request) []attribute.KeyValue {
	service, op, _ := message.SplitServiceMethod(req.Method)
	return []attribute.KeyValue{
		attribute.String("rpc.system", instrumentationName),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", op),
	}
}

// observe runs next inside a span of the given kind and records metrics.
func (in *instruments) observe(ctx context.Context, kind trace.SpanKind, req *message.Request, next middleware.HandlerFunc, inject bool) *message.Response {
	attrs := callAttributes(req)
	start := time.Now()

	var span trace.Span
	if in.cfg.EnableTracing {
		spanAttrs := append(append([]attribute.KeyValue(nil), attrs...), in.cfg.CustomAttributes...)
		spanAttrs = append(spanAttrs, attribute.Int64("rpc.kvrpc.request_id", int64(req.ID)))
		ctx, span = in.tracer.Start(ctx, "kvrpc/"+req.Method,
			trace.WithSpanKind(kind),
			trace.WithAttributes(spanAttrs...),
		)
		defer span.End()
	}
	if inject {
		if req.Header == nil {
			req.Header = make(map[string]string)
		}
		in.cfg.Propagator.Inject(ctx, propagation.MapCarrier(req.Header))
	}

	resp := next(ctx, req)

	status := "ok"
	if resp.Error != nil {
		status = "error"
	}
	if in.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(append(attrs, attribute.String("status", status))...)
		if in.requests != nil {
			in.requests.Add(ctx, 1, metricAttrs)
		}
		if in.duration != nil {
			in.duration.Record(ctx, time.Since(start).Seconds(), metricAttrs)
		}
	}
	if span != nil && span.IsRecording() {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))
		if resp.Error != nil {
			span.SetStatus(codes.Error, resp.Error.Detail)
			span.SetAttributes(attribute.String("rpc.kvrpc.error_id", resp.Error.ID))
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return resp
}

// ServerMiddleware traces and measures dispatched calls. The parent trace
// context is read from req.Header (traceparent/tracestate).
func ServerMiddleware(cfg Config) middleware.Middleware {
	in := newInstruments(cfg, "server")
	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if req.Header != nil {
				ctx = in.cfg.Propagator.Extract(ctx, propagation.MapCarrier(req.Header))
			}
			return in.observe(ctx, trace.SpanKindServer, req, next, false)
		}
	}
}

// ClientMiddleware traces and measures outgoing calls and injects the span
// context into req.Header.
func ClientMiddleware(cfg Config) middleware.Middleware {
	in := newInstruments(cfg, "client")
	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			return in.observe(ctx, trace.SpanKindClient, req, next, true)
		}
	}
}
