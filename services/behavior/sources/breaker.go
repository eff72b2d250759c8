// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker position for one upstream source.
//
//	CLOSED ──[failure threshold]──► OPEN
//	   ▲                              │
//	   │                       [open timeout]
//	   └───[successes]◄── HALF_OPEN ◄─┘
type CircuitState int

const (
	// CircuitClosed is normal operation; requests flow through.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects requests immediately; the source is known-dead.
	CircuitOpen

	// CircuitHalfOpen lets probes through to test recovery.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig controls how a breaker trips and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is consecutive half-open successes before closing.
	SuccessThreshold int

	// OpenTimeout is how long to stay open before probing.
	OpenTimeout time.Duration

	// OnStateChange is invoked (asynchronously) on transitions.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the production defaults: trip after
// 5 failures, probe after 30s, close after 2 good probes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker fails fast against an upstream that keeps erroring, so a
// dead provider costs one rejected call instead of a full retry budget on
// every forecast request.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg         CircuitBreakerConfig
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	mu          sync.Mutex
}

// NewCircuitBreaker creates a breaker in the closed state. Zero config
// fields get defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Execute runs fn if the breaker allows it and records the outcome.
// Returns ErrCircuitOpen without calling fn when the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.cfg.OpenTimeout {
			cb.transition(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()
		switch cb.state {
		case CircuitClosed:
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.transition(CircuitOpen)
			}
		case CircuitHalfOpen:
			// Any half-open failure re-opens immediately.
			cb.transition(CircuitOpen)
		}
		return
	}

	cb.successes++
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.failures = 0
			cb.transition(CircuitClosed)
		}
	}
}

// transition assumes cb.mu is held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(from, to)
	}
}
