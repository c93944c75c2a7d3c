package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

var errTransient = errors.New("transient")

func retryTransient(err error) bool { return errors.Is(err, errTransient) }

func TestPolicyDoRetriesTransientErrors(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Millisecond, Cap: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), retryTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPolicyDoStopsOnPermanentError(t *testing.T) {
	p := Policy{Attempts: 5, Base: time.Millisecond, Cap: time.Millisecond}
	permanent := errors.New("permanent")
	calls := 0
	err := p.Do(context.Background(), retryTransient, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("Do() = %v after %d calls, want permanent after 1", err, calls)
	}
}

func TestPolicyDoGivesUp(t *testing.T) {
	p := Policy{Attempts: 2, Base: time.Millisecond, Cap: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), retryTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) || calls != 2 {
		t.Fatalf("Do() = %v after %d calls, want transient after 2", err, calls)
	}
}

func TestPolicyDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{Attempts: 5, Base: time.Hour, Cap: time.Hour}
	calls := 0
	err := p.Do(ctx, retryTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) || calls != 1 {
		t.Fatalf("Do() = %v after %d calls, want transient after 1", err, calls)
	}
}
