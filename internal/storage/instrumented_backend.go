package storage

import (
	"context"
	"time"

	"neuromail-go/internal/monitoring"
	"neuromail-go/internal/monitoring/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WithInstrumentation wraps a backend with tracing and metrics instrumentation.
func WithInstrumentation(inner Backend, label string) Backend {
	if inner == nil {
		return inner
	}
	if label == "" {
		label = "unknown"
	}
	return &instrumentedBackend{Backend: inner, label: label}
}

type instrumentedBackend struct {
	Backend
	label string
}

// Unwrap exposes the wrapped backend.
func (i *instrumentedBackend) Unwrap() Backend { return i.Backend }

func (i *instrumentedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte
	err := i.instrument(ctx, "get", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = i.Backend.Get(ctx, key)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) Set(ctx context.Context, key string, value []byte) error {
	return i.instrument(ctx, "set", func(ctx context.Context) error {
		return i.Backend.Set(ctx, key, value)
	})
}

func (i *instrumentedBackend) Delete(ctx context.Context, key string) error {
	return i.instrument(ctx, "delete", func(ctx context.Context) error {
		return i.Backend.Delete(ctx, key)
	})
}

func (i *instrumentedBackend) Keys(ctx context.Context) ([]string, error) {
	var result []string
	err := i.instrument(ctx, "keys", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = i.Backend.Keys(ctx)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "storage", i.label+"/"+operation)
	span.SetAttributes(
		attribute.String("storage.backend", i.label),
		attribute.String("storage.operation", operation),
	)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	result := "ok"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case IsNotFound(err):
		// a miss is a normal answer, not a failure
		result = "not_found"
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	monitoring.StorageOperationDuration.WithLabelValues(i.label, operation, result).Observe(duration.Seconds())
	return err
}
