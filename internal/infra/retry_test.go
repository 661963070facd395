package infra_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"voznote/internal/domain"
	"voznote/internal/infra"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	for k := 0; k < 3; k++ {
		rec := &sleepRecorder{}
		cfg := infra.RetryConfig{Retries: 3, InitialDelay: 10 * time.Millisecond, Multiplier: 2, Sleep: rec.sleep}

		calls := 0
		got, err := infra.Do(context.Background(), cfg, func() (string, error) {
			calls++
			if calls <= k {
				return "", domain.NewError(domain.KindOverloaded, "", nil)
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if got != "ok" {
			t.Errorf("k=%d: got %q, want ok", k, got)
		}
		if calls != k+1 {
			t.Errorf("k=%d: calls got %d, want %d", k, calls, k+1)
		}
		if len(rec.delays) != k {
			t.Fatalf("k=%d: waited %d times, want %d", k, len(rec.delays), k)
		}
		for i := 1; i < len(rec.delays); i++ {
			if rec.delays[i] != 2*rec.delays[i-1] {
				t.Errorf("k=%d: delays not doubling: %v", k, rec.delays)
			}
		}
	}
}

func TestWithRetry_NonTransientFailsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	cfg := infra.RetryConfig{Retries: 3, InitialDelay: time.Second, Sleep: rec.sleep}

	authErr := domain.NewError(domain.KindAuth, "", nil)
	calls := 0
	err := infra.WithRetry(context.Background(), cfg, func() error {
		calls++
		return authErr
	})

	if !errors.Is(err, authErr) {
		t.Errorf("error should propagate unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("should not wait, waited %v", rec.delays)
	}
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	rec := &sleepRecorder{}
	cfg := infra.RetryConfig{Retries: 2, InitialDelay: time.Millisecond, Multiplier: 2, Sleep: rec.sleep}

	calls := 0
	err := infra.WithRetry(context.Background(), cfg, func() error {
		calls++
		return domain.NewError(domain.KindRateLimited, "", nil)
	})

	if domain.KindOf(err) != domain.KindRateLimited {
		t.Errorf("kind: got %s", domain.KindOf(err))
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(rec.delays) != len(want) || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays: got %v, want %v", rec.delays, want)
	}
}

func TestWithRetry_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := infra.RetryConfig{Retries: 3, InitialDelay: time.Hour}
	err := infra.WithRetry(ctx, cfg, func() error {
		return domain.NewError(domain.KindUnavailable, "", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code   int
		status string
		want   domain.ErrorKind
	}{
		{http.StatusRequestEntityTooLarge, "", domain.KindPayloadTooLarge},
		{http.StatusForbidden, "", domain.KindAuth},
		{http.StatusBadRequest, "PERMISSION_DENIED", domain.KindAuth},
		{http.StatusTooManyRequests, "", domain.KindRateLimited},
		{http.StatusServiceUnavailable, "UNAVAILABLE", domain.KindUnavailable},
		{529, "overloaded_error", domain.KindOverloaded},
		{http.StatusInternalServerError, "", domain.KindConnection},
		{http.StatusInternalServerError, "INTERNAL", domain.KindConnection},
		{http.StatusInternalServerError, "overloaded_error", domain.KindOverloaded},
		{http.StatusBadGateway, "", domain.KindConnection},
		{http.StatusBadRequest, "INVALID_ARGUMENT", domain.KindConnection},
	}

	for _, tt := range tests {
		if got := infra.ClassifyHTTPStatus(tt.code, tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d, %q): got %s, want %s", tt.code, tt.status, got, tt.want)
		}
	}
}

func TestWithRetry_PlainServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), infra.RetryConfig{
		Retries:      3,
		InitialDelay: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}, func() error {
		calls++
		return domain.NewError(infra.ClassifyHTTPStatus(http.StatusInternalServerError, ""), "", nil)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}
