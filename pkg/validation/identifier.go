// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security-critical
// identifiers.
//
// Region and source ids flow from user requests into Prometheus label
// sets, InfluxDB tags, and journal records. Validating them at ingress
// prevents label-set poisoning and Flux injection through tag values.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid region and source identifiers.
// Allows: letters, digits, then dots, underscores, and hyphens.
// Max length: 64 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateIdentifier validates a region or source id before it is used
// as a metric label or database tag.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters A-Z, a-z and digits 0-9
//   - Dots (.), underscores (_), and hyphens (-) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentifier(regionID); err != nil {
//	    return nil, fmt.Errorf("invalid region id: %w", err)
//	}
//	// Safe to use as a label or tag value
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates an identifier.
// Returns the lowercase id if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeID, err := validation.SanitizeIdentifier(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is lowercase and validated
func SanitizeIdentifier(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
