package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after failures: got %v, want open", got)
	}
	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker must reject: got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	cb.Execute(failing)
	cb.Execute(succeeding)
	cb.Execute(failing)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("interleaved success must reset the count, state %v", got)
	}
}

func TestCircuitBreaker_HalfOpenProbesThenCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	cb.Execute(failing)
	if cb.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatal("elapsed reset timeout should report half-open")
	}

	// Two successful probes close the breaker.
	if err := cb.Execute(succeeding); err != nil {
		t.Fatal(err)
	}
	if err := cb.Execute(succeeding); err != nil {
		t.Fatal(err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after probes: got %v, want closed", got)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})

	cb.Execute(failing)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatal(err)
	}
	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed probe must re-open immediately: got %v", err)
	}
}

func TestCircuitBreaker_ResetClosesManually(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Execute(failing)
	cb.Reset()
	if err := cb.Execute(succeeding); err != nil {
		t.Fatalf("reset breaker must forward calls: got %v", err)
	}
}
