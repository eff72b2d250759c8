// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the behavior engine.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/engine"
)

// HandleForecast serves POST /v1/forecast.
//
// Binding failures map to 400 invalid_input; engine failures map by
// error kind. Degraded results are 200s: the degraded flag and
// data_quality block are the client's signal, not the status code.
func HandleForecast(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := uuid.New().String()

		var req datatypes.ForecastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				ErrorKind:     datatypes.ErrKindInvalidInput,
				Message:       err.Error(),
				CorrelationID: correlationID,
			})
			return
		}

		res, engErr := eng.Forecast(c.Request.Context(), req)
		if engErr != nil {
			status := statusFor(engErr.Kind)
			if status >= http.StatusInternalServerError {
				slog.Error("forecast failed",
					"correlation_id", correlationID,
					"region", req.RegionID,
					"kind", engErr.Kind,
					"error", engErr.Message)
			}
			c.JSON(status, datatypes.ErrorResponse{
				ErrorKind:     engErr.Kind,
				Message:       engErr.Message,
				CorrelationID: correlationID,
			})
			return
		}

		if res.Degraded {
			slog.Warn("degraded forecast served",
				"correlation_id", correlationID,
				"region", res.RegionID,
				"reason", res.DegradedReason)
		}
		c.JSON(http.StatusOK, res)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind datatypes.ErrorKind) int {
	switch kind {
	case datatypes.ErrKindInvalidInput:
		return http.StatusBadRequest
	case datatypes.ErrKindConcurrencySaturated:
		return http.StatusServiceUnavailable
	case datatypes.ErrKindDeadlineExceeded:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
