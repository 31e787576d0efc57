package gateway

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tarot-oracle/internal/models"
)

// attemptFunc performs one request-response cycle against baseURL. The
// context already carries the per-attempt timeout.
type attemptFunc func(ctx context.Context, baseURL string) (*models.GenerationResult, error)

// fallbackDriver walks candidate base URLs in priority order.
type fallbackDriver struct {
	candidates []string
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

// run attempts each candidate in order and returns the first success, tagged
// with the base URL that produced it. Every failure is logged where it
// occurs; only the last one is returned, wrapped in ExhaustedEndpointsError.
func (d fallbackDriver) run(ctx context.Context, path, generationID string, attempt attemptFunc) (*models.GenerationResult, error) {
	if len(d.candidates) == 0 {
		return nil, ErrNoEndpoints
	}

	var (
		lastErr  error
		attempts int
	)
	for i, baseURL := range d.candidates {
		if err := ctx.Err(); err != nil {
			lastErr = &TransportError{BaseURL: baseURL, Path: path, Err: err}
			break
		}
		attempts++

		result, err := d.attemptOnce(ctx, baseURL, path, attempt)
		if err == nil {
			result.BaseURL = baseURL
			return result, nil
		}

		lastErr = err
		d.logger.Warn("llm attempt failed",
			"generation_id", generationID,
			"attempt", i+1,
			"base_url", baseURL,
			"path", path,
			"err", err,
		)
	}

	return nil, &ExhaustedEndpointsError{Attempts: attempts, Last: lastErr}
}

func (d fallbackDriver) attemptOnce(ctx context.Context, baseURL, path string, attempt attemptFunc) (*models.GenerationResult, error) {
	ctx, span := d.tracer.Start(ctx, "gateway.attempt", trace.WithAttributes(
		attribute.String("llm.base_url", baseURL),
		attribute.String("llm.path", path),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := attempt(attemptCtx, baseURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("llm.mode", string(result.Mode)))
	return result, nil
}
