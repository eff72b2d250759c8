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
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// scriptedDoer replays a fixed sequence of responses.
type scriptedDoer struct {
	calls     int
	responses []scripted
}

type scripted struct {
	status int
	body   string
	err    error
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	step := d.responses[d.calls]
	if d.calls < len(d.responses)-1 {
		d.calls++
	}
	if step.err != nil {
		return nil, step.err
	}
	return &http.Response{
		StatusCode: step.status,
		Body:       io.NopCloser(strings.NewReader(step.body)),
		Header:     make(http.Header),
	}, nil
}

func fastConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 2 * time.Millisecond
	return cfg
}

func TestGetJSONRetriesThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{responses: []scripted{
		{status: http.StatusBadGateway},
		{status: http.StatusOK, body: `{"v": 42}`},
	}}
	client := NewClient(fastConfig(), doer)

	var out struct {
		V int `json:"v"`
	}
	if err := client.GetJSON(context.Background(), "market", "http://example/x", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.V != 42 {
		t.Errorf("decoded V = %d, want 42", out.V)
	}
	if doer.calls != 1 {
		t.Errorf("attempts = %d, want 2 (one retry)", doer.calls+1)
	}
}

func TestGetJSONRateLimitSurfacesAfterRetries(t *testing.T) {
	doer := &scriptedDoer{responses: []scripted{
		{status: http.StatusTooManyRequests},
	}}
	client := NewClient(fastConfig(), doer)

	var out map[string]any
	err := client.GetJSON(context.Background(), "search", "http://example/x", &out)
	if !IsRateLimited(err) {
		t.Fatalf("error = %v, want rate-limited", err)
	}
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	doer := &scriptedDoer{responses: []scripted{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
	}}
	cfg := fastConfig()
	client := NewClient(cfg, doer)

	var out map[string]any
	err := client.GetJSON(context.Background(), "media", "http://example/x", &out)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if doer.calls+1 < cfg.MaxAttempts {
		t.Errorf("attempts = %d, want %d", doer.calls+1, cfg.MaxAttempts)
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	doer := &scriptedDoer{responses: []scripted{
		{status: http.StatusOK, body: `not json`},
	}}
	client := NewClient(fastConfig(), doer)

	var out map[string]any
	if err := client.GetJSON(context.Background(), "fuel", "http://example/x", &out); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestCircuitBreakerOpensPerSource(t *testing.T) {
	doer := &scriptedDoer{responses: []scripted{
		{status: http.StatusInternalServerError},
	}}
	client := NewClient(fastConfig(), doer)

	// Drive the breaker past its failure threshold.
	var out map[string]any
	for i := 0; i < 3; i++ {
		_ = client.GetJSON(context.Background(), "storms", "http://example/x", &out)
	}
	if state := client.breakerFor("storms").State(); state != CircuitOpen {
		t.Fatalf("breaker state = %v, want open", state)
	}

	// The open breaker short-circuits without touching the doer.
	before := doer.calls
	err := client.GetJSON(context.Background(), "storms", "http://example/x", &out)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want circuit open", err)
	}
	if doer.calls != before {
		t.Error("open breaker must not reach upstream")
	}

	// Other sources keep their own breakers.
	if state := client.breakerFor("weather").State(); state != CircuitClosed {
		t.Errorf("unrelated breaker state = %v, want closed", state)
	}
}
