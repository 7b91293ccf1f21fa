package domain

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetryRecoversWithinBudget(t *testing.T) {
	calls := 0
	d := WithRetry(func(ctx context.Context, env *Envelope) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("502 bad gateway")
		}
		return "ok", nil
	}, 1)

	resp, err := d(context.Background(), &Envelope{})
	if err != nil || resp != "ok" {
		t.Fatalf("got %q, %v", resp, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	cause := errors.New("timeout")
	d := WithRetry(func(ctx context.Context, env *Envelope) (string, error) {
		calls++
		return "", cause
	}, 1)

	_, err := d(context.Background(), &Envelope{})
	if !errors.Is(err, ErrDispatchExhausted) || !errors.Is(err, cause) {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestWithRetryDoesNotRetryInterruption(t *testing.T) {
	calls := 0
	d := WithRetry(func(ctx context.Context, env *Envelope) (string, error) {
		calls++
		return "", &ChannelInterruption{Partial: "half"}
	}, 3)

	_, err := d(context.Background(), &Envelope{})
	var ci *ChannelInterruption
	if !errors.As(err, &ci) || ci.Partial != "half" {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryZeroLengthIsInterruption(t *testing.T) {
	d := WithRetry(func(ctx context.Context, env *Envelope) (string, error) {
		return "", nil
	}, 1)

	_, err := d(context.Background(), &Envelope{})
	var ci *ChannelInterruption
	if !errors.As(err, &ci) || ci.Partial != "" {
		t.Fatalf("expected empty interruption, got %v", err)
	}
}
