package infra

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voznote/internal/domain"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// Retries is the number of extra attempts after the first one.
	Retries      int
	InitialDelay time.Duration
	// MaxDelay caps the backoff; zero means uncapped.
	MaxDelay   time.Duration
	Multiplier float64

	// Sleep waits between attempts. Nil uses a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the backoff used around every AI call
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:      3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
	}
}

// WithRetry executes fn, retrying with exponential backoff only while the
// failure is classified as transient.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do is WithRetry for operations that produce a value.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := cfg.InitialDelay
	retries := cfg.Retries

	for {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		// Don't retry on context cancellation
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, err
		}

		if !domain.IsTransient(err) || retries <= 0 {
			return v, err
		}

		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}

		delay = time.Duration(float64(delay) * multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		retries--
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClassifyHTTPStatus maps a remote status code, plus the provider's symbolic
// status or error type when it sent one, onto an error kind.
func ClassifyHTTPStatus(statusCode int, providerStatus string) domain.ErrorKind {
	switch providerStatus {
	case "RESOURCE_EXHAUSTED", "rate_limit_error":
		return domain.KindRateLimited
	case "UNAVAILABLE":
		return domain.KindUnavailable
	case "overloaded_error":
		return domain.KindOverloaded
	case "PERMISSION_DENIED", "UNAUTHENTICATED", "authentication_error", "permission_error":
		return domain.KindAuth
	}

	switch {
	case statusCode == http.StatusRequestEntityTooLarge:
		return domain.KindPayloadTooLarge
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.KindAuth
	case statusCode == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case statusCode == http.StatusServiceUnavailable:
		return domain.KindUnavailable
	case statusCode == 529:
		return domain.KindOverloaded
	}
	// Other server errors are not retried.
	return domain.KindConnection
}

// TransportError classifies a failure to reach the remote service at all.
func TransportError(service string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewError(domain.KindConnection, "", errors.Join(errors.New(service+" unreachable"), err))
}
