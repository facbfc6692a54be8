package vectorstackai

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vectorstack-ai/go-vectorstackai/internal"
)

const instrumentationName = "github.com/vectorstack-ai/go-vectorstackai"

func newDefaultLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "vectorstackai",
		Level:  hclog.Warn,
		Output: os.Stderr,
	})
}

// clientMetrics are the Prometheus collectors updated by every Client operation.
type clientMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// newClientMetrics registers the client collectors with reg. Collectors already registered by another Client on the
// same registerer are reused.
func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectorstackai_client_requests_total",
		Help: "Logical API calls by operation and outcome",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vectorstackai_client_request_duration_seconds",
		Help:    "Duration of logical API calls, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectorstackai_client_retries_total",
		Help: "Retried attempts by operation and error kind",
	}, []string{"operation", "kind"})

	var err error
	m := &clientMetrics{}
	if m.requests, err = registerOrReuse(reg, requests); err != nil {
		return nil, err
	}
	if m.duration, err = registerOrReuse(reg, duration); err != nil {
		return nil, err
	}
	if m.retries, err = registerOrReuse(reg, retries); err != nil {
		return nil, err
	}
	return m, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// telemetry bundles the logger, tracer and optional metrics shared by a Client and its IndexConnections.
type telemetry struct {
	logger  hclog.Logger
	tracer  trace.Tracer
	metrics *clientMetrics
}

func newTelemetry(logger hclog.Logger, tp trace.TracerProvider, reg prometheus.Registerer) (*telemetry, error) {
	if logger == nil {
		logger = newDefaultLogger()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	t := &telemetry{
		logger: logger,
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(internal.Version)),
	}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		t.metrics = m
	}
	return t, nil
}

// start opens the span for one logical operation. The returned func must be called with the final error.
func (t *telemetry) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "vectorstackai."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	began := time.Now()

	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("vectorstackai.outcome", outcome))
		span.End()

		if t.metrics != nil {
			t.metrics.requests.WithLabelValues(operation, outcome).Inc()
			t.metrics.duration.WithLabelValues(operation).Observe(time.Since(began).Seconds())
		}
	}
}

func (t *telemetry) retried(operation string, err error) {
	if t.metrics == nil {
		return
	}
	t.metrics.retries.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrInvalidArgument) {
		return "invalid_argument"
	}
	if errors.Is(err, ErrNotConfirmed) {
		return "not_confirmed"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
