// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// NodeKind is the level of a sub-index tree node.
type NodeKind string

const (
	NodeChild     NodeKind = "child"
	NodeParent    NodeKind = "parent"
	NodeComposite NodeKind = "composite"
)

// SubIndexNode is one node of the two-level behavior index tree.
//
// Value is in [0,1] when Present; Weight is the node's renormalized weight
// within its parent. A node whose children are all missing is itself
// missing and carries Present=false.
type SubIndexNode struct {
	Name                string         `json:"name"`
	Kind                NodeKind       `json:"kind"`
	Present             bool           `json:"present"`
	Value               float64        `json:"value"`
	Weight              float64        `json:"weight"`
	Children            []SubIndexNode `json:"children,omitempty"`
	ContributingSources []string       `json:"contributing_sources,omitempty"`
}

// Contribution is one (parent, child) weight assignment for a single day.
// A flat list of these is easier to serialize, emit as metrics, and diff
// across requests than a nested object map.
type Contribution struct {
	Parent string  `json:"parent"`
	Child  string  `json:"child"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// ForecastPoint is one projected day with its interval band.
type ForecastPoint struct {
	Date  string  `json:"date"`
	Point float64 `json:"point"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// DataQuality summarizes how much of the requested window the inputs
// actually covered.
type DataQuality struct {
	Completeness        float64 `json:"completeness"`
	RegionalVarianceTag string  `json:"regional_variance_tag"`
}

// ForecastResult is the full outcome of one forecast request.
type ForecastResult struct {
	RegionID       string               `json:"region_id"`
	CreatedAt      time.Time            `json:"created_at"`
	HorizonDays    int                  `json:"horizon_days"`
	History        *DailySeries         `json:"history"`
	Tree           SubIndexNode         `json:"tree"`
	Contributions  []Contribution       `json:"contributions"`
	Forecast       []ForecastPoint      `json:"forecast"`
	ModelName      string               `json:"model_name"`
	ModelParams    map[string]float64   `json:"model_params"`
	Sources        []SourceFetchSummary `json:"data_sources"`
	DataQuality    DataQuality          `json:"data_quality"`
	Degraded       bool                 `json:"degraded"`
	DegradedReason ErrorKind            `json:"degraded_reason,omitempty"`

	// RequestFingerprint identifies the fetch inputs; Digest identifies
	// the output. Both are journaled for audit and replay.
	RequestFingerprint string `json:"request_fingerprint"`
	Digest             string `json:"result_digest"`
}

// ComputeDigest fills Digest from the deterministic parts of the result:
// the history series, the forecast band, and the model identity. CreatedAt
// and per-source fetch timestamps are deliberately excluded so two runs
// over identical cached inputs digest identically.
func (r *ForecastResult) ComputeDigest() {
	h := sha256.New()
	if r.History != nil {
		h.Write([]byte(r.History.Digest()))
	}
	h.Write([]byte(r.ModelName))
	enc, _ := json.Marshal(r.Forecast)
	h.Write(enc)
	r.Digest = hex.EncodeToString(h.Sum(nil))
}

// ForecastRequest is the POST /forecast body. Binding tags enforce the
// documented ranges before the engine sees the request.
type ForecastRequest struct {
	RegionID        string  `json:"region_id" binding:"required"`
	RegionName      string  `json:"region_name"`
	Latitude        float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude       float64 `json:"longitude" binding:"min=-180,max=180"`
	DaysBack        int     `json:"days_back" binding:"omitempty,min=1,max=3650"`
	ForecastHorizon int     `json:"forecast_horizon" binding:"omitempty,min=1,max=90"`
}

// ErrorResponse is the structured error body for 4xx/5xx replies.
type ErrorResponse struct {
	ErrorKind     ErrorKind `json:"error_kind"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id"`
}
