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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HTTPDoer lets tests inject a fake transport (same seam the data
// fetching services use).
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrRateLimited marks an upstream 429. The client retries it with
// backoff; once the budget is spent the connector demotes it to
// upstream_unavailable but keeps the kind for reporting.
var ErrRateLimited = errors.New("upstream rate limited")

// IsRateLimited reports whether err carries the rate-limit marker.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// ClientConfig bounds the shared upstream client.
type ClientConfig struct {
	// MaxAttempts caps tries per request, including the first.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the exponential backoff with
	// full jitter between attempts.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RequestTimeout is the per-attempt deadline.
	RequestTimeout time.Duration

	// RatePerSecond and Burst bound the aggregate upstream call rate.
	RatePerSecond float64
	Burst         int

	// UserAgent is sent on every request; some public APIs reject
	// anonymous clients.
	UserAgent string
}

// DefaultClientConfig returns the production defaults: 3 attempts,
// 250ms base / 5s cap backoff, 10s request deadline.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAttempts:    3,
		BackoffBase:    250 * time.Millisecond,
		BackoffCap:     5 * time.Second,
		RequestTimeout: 10 * time.Second,
		RatePerSecond:  8,
		Burst:          16,
		UserAgent:      "behavior-engine/1.0",
	}
}

// Client is the shared retrying HTTP client used by all connectors.
//
// It layers, inside-out: a per-attempt timeout, exponential backoff with
// full jitter across attempts, a global token-bucket rate limit, and one
// circuit breaker per host so a single dead upstream fails fast without
// burning the retry budget of every request.
type Client struct {
	cfg      ClientConfig
	doer     HTTPDoer
	limiter  *rate.Limiter
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewClient builds a Client. A nil doer gets a plain http.Client with the
// configured per-attempt timeout.
func NewClient(cfg ClientConfig, doer HTTPDoer) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.RequestTimeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:      cfg,
		doer:     doer,
		limiter:  rate.NewLimiter(limit, burst),
		breakers: make(map[string]*CircuitBreaker),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetJSON fetches url and decodes the JSON body into out, applying the
// full retry/backoff/rate-limit/breaker stack.
func (c *Client) GetJSON(ctx context.Context, source, url string, out any) error {
	body, err := c.get(ctx, source, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", source, err)
	}
	return nil
}

// get runs the attempt loop and returns the raw body of the first
// successful response.
func (c *Client) get(ctx context.Context, source, url string) ([]byte, error) {
	breaker := c.breakerFor(source)
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.jitteredBackoff(attempt - 1)
			slog.Warn("retrying upstream fetch",
				"source", source, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var body []byte
		err := breaker.Execute(func() error {
			var attemptErr error
			body, attemptErr = c.doOnce(ctx, source, url)
			return attemptErr
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			// Upstream is known-dead; don't spend the remaining budget.
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", source, lastErr)
}

// doOnce performs a single attempt with its own deadline.
func (c *Client) doOnce(ctx context.Context, source, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", source, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", source, ErrRateLimited)
	default:
		return nil, errStatus(source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", source, err)
	}
	return body, nil
}

// jitteredBackoff returns a full-jitter delay for the n-th retry.
func (c *Client) jitteredBackoff(n int) time.Duration {
	backoff := c.cfg.BackoffBase << uint(n-1)
	if backoff > c.cfg.BackoffCap || backoff <= 0 {
		backoff = c.cfg.BackoffCap
	}
	c.rngMu.Lock()
	d := time.Duration(c.rng.Int63n(int64(backoff) + 1))
	c.rngMu.Unlock()
	return d
}

// breakerFor returns the per-source circuit breaker, creating it lazily.
func (c *Client) breakerFor(source string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[source]
	if !ok {
		cfg := DefaultCircuitBreakerConfig()
		cfg.OnStateChange = func(from, to CircuitState) {
			slog.Warn("circuit breaker state change",
				"source", source, "from", from.String(), "to", to.String())
		}
		b = NewCircuitBreaker(cfg)
		c.breakers[source] = b
	}
	return b
}
