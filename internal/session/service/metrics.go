package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "lms-sessions/session"

// instruments are resolved from the global providers when the store or manager is built,
// so cmd binaries must call Providers.SetGlobal first.
type instruments struct {
	tracer  trace.Tracer
	deleted metric.Int64Counter
	vetoed  metric.Int64Counter
	evicted metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	deleted, err := meter.Int64Counter("session.gc.deleted",
		metric.WithDescription("Sessions deleted by garbage collection, by pass."),
		metric.WithUnit("{session}"))
	if err != nil {
		deleted, _ = fallback.Int64Counter("session.gc.deleted")
	}
	vetoed, err := meter.Int64Counter("session.gc.vetoed",
		metric.WithDescription("Idle sessions kept because an auth plugin ignored the timeout."),
		metric.WithUnit("{session}"))
	if err != nil {
		vetoed, _ = fallback.Int64Counter("session.gc.vetoed")
	}
	evicted, err := meter.Int64Counter("session.evicted",
		metric.WithDescription("Sessions killed by the concurrent login limit."),
		metric.WithUnit("{session}"))
	if err != nil {
		evicted, _ = fallback.Int64Counter("session.evicted")
	}
	return &instruments{
		tracer:  otel.GetTracerProvider().Tracer(instrumentationName),
		deleted: deleted,
		vetoed:  vetoed,
		evicted: evicted,
	}
}
