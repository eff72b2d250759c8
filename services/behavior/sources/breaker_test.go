// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sources

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errUpstream })
		if cb.State() != CircuitClosed {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}
	_ = cb.Execute(func() error { return errUpstream })
	if cb.State() != CircuitOpen {
		t.Fatal("breaker must open at the failure threshold")
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatal("open breaker must reject without calling fn")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Hour})

	_ = cb.Execute(func() error { return errUpstream })
	_ = cb.Execute(func() error { return errUpstream })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errUpstream })
	_ = cb.Execute(func() error { return errUpstream })

	if cb.State() != CircuitClosed {
		t.Fatal("a success must reset the consecutive failure count")
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      time.Millisecond,
	})

	_ = cb.Execute(func() error { return errUpstream })
	if cb.State() != CircuitOpen {
		t.Fatal("breaker must open")
	}

	time.Sleep(5 * time.Millisecond)

	// First probe moves to half-open; a failure there re-opens.
	_ = cb.Execute(func() error { return errUpstream })
	if cb.State() != CircuitOpen {
		t.Fatal("half-open failure must re-open")
	}

	time.Sleep(5 * time.Millisecond)
	_ = cb.Execute(func() error { return nil })
	if cb.State() != CircuitHalfOpen {
		t.Fatal("one good probe is not enough to close")
	}
	_ = cb.Execute(func() error { return nil })
	if cb.State() != CircuitClosed {
		t.Fatal("two good probes must close the breaker")
	}
}
