package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var (
	errTransient = errors.New("node timeout")
	errRejected  = errors.New("execution reverted")
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDo(t *testing.T) {
	onlyTransient := func(err error) bool { return errors.Is(err, errTransient) }

	tests := []struct {
		name        string
		maxRetries  int
		isRetryable IsRetryableFunc
		failures    []error // returned by successive calls before succeeding
		wantCalls   int
		wantErr     error
		wantExhaust bool
	}{
		{
			name:       "first attempt succeeds",
			maxRetries: 3,
			wantCalls:  1,
		},
		{
			name:       "transient failures then success",
			maxRetries: 3,
			failures:   []error{errTransient, errTransient},
			wantCalls:  3,
		},
		{
			name:        "rejected by isRetryable",
			maxRetries:  3,
			isRetryable: onlyTransient,
			failures:    []error{errRejected},
			wantCalls:   1,
			wantErr:     errRejected,
		},
		{
			name:       "permanent error with nil isRetryable",
			maxRetries: 3,
			failures:   []error{Permanent(errRejected)},
			wantCalls:  1,
			wantErr:    errRejected,
		},
		{
			name:        "permanent wins over isRetryable",
			maxRetries:  3,
			isRetryable: func(error) bool { return true },
			failures:    []error{fmt.Errorf("chunk 2: %w", Permanent(errTransient))},
			wantCalls:   1,
			wantErr:     errTransient,
		},
		{
			name:        "exhausted",
			maxRetries:  2,
			failures:    []error{errTransient, errTransient, errTransient, errTransient},
			wantCalls:   3,
			wantErr:     errTransient,
			wantExhaust: true,
		},
		{
			name:        "zero retries runs once",
			maxRetries:  0,
			failures:    []error{errTransient},
			wantCalls:   1,
			wantErr:     errTransient,
			wantExhaust: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), fastConfig(tt.maxRetries), tt.isRetryable, nil, func() (string, error) {
				calls++
				if calls <= len(tt.failures) {
					return "", tt.failures[calls-1]
				}
				return "0x6080", nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != "0x6080" {
					t.Errorf("result = %q", got)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var exhausted *ExhaustedError
			if errors.As(err, &exhausted) != tt.wantExhaust {
				t.Errorf("ExhaustedError = %v, want %v (err %v)", !tt.wantExhaust, tt.wantExhaust, err)
			}
			if tt.wantExhaust && exhausted.Attempts != tt.wantCalls {
				t.Errorf("Attempts = %d, want %d", exhausted.Attempts, tt.wantCalls)
			}
		})
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, cfg, nil, nil, func() (int, error) {
			calls++
			return 0, errTransient
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_BackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	var waits []time.Duration
	var attempts []int
	_, _ = Do(context.Background(), cfg, nil, func(attempt int, err error, backoff time.Duration) {
		if !errors.Is(err, errTransient) {
			t.Errorf("onRetry got error %v", err)
		}
		attempts = append(attempts, attempt)
		waits = append(waits, backoff)
	}, func() (int, error) {
		return 0, errTransient
	})

	want := []time.Duration{1, 2, 4, 4, 4}
	if len(waits) != len(want) {
		t.Fatalf("onRetry called %d times, want %d", len(waits), len(want))
	}
	for i := range want {
		if waits[i] != want[i]*time.Millisecond {
			t.Errorf("wait %d = %v, want %v", i, waits[i], want[i]*time.Millisecond)
		}
		if attempts[i] != i+1 {
			t.Errorf("attempt %d reported as %d", i+1, attempts[i])
		}
	}
}

func TestDo_JitterStaysWithinBounds(t *testing.T) {
	cfg := fastConfig(3)
	cfg.Jitter = true

	prev := cfg.InitialBackoff
	_, _ = Do(context.Background(), cfg, nil, func(attempt int, _ error, backoff time.Duration) {
		if backoff < prev || backoff >= 2*prev {
			t.Errorf("attempt %d: wait %v outside [%v, %v)", attempt, backoff, prev, 2*prev)
		}
		prev = min(2*prev, cfg.MaxBackoff)
	}, func() (int, error) {
		return 0, errTransient
	})
}

func TestDo_AppliesDefaults(t *testing.T) {
	var first time.Duration
	_, _ = Do(context.Background(), Config{MaxRetries: 1}, nil, func(_ int, _ error, backoff time.Duration) {
		first = backoff
	}, func() (int, error) {
		return 0, errTransient
	})
	if first != 10*time.Millisecond {
		t.Errorf("default initial backoff = %v, want 10ms", first)
	}
}

func TestDoVoid(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), fastConfig(2), nil, nil, func() error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	wrapped := fmt.Errorf("getsourcecode: %w", Permanent(errRejected))
	if !IsPermanent(wrapped) {
		t.Error("IsPermanent should see through wrapping")
	}
	if !errors.Is(wrapped, errRejected) {
		t.Error("Permanent should unwrap to the cause")
	}
	if IsPermanent(errTransient) {
		t.Error("plain error reported as permanent")
	}
	if got := wrapped.Error(); got != "getsourcecode: execution reverted" {
		t.Errorf("Error() = %q", got)
	}
}
