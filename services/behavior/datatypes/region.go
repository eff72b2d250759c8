// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared data model for the behavior service:
// regions, daily series, source fetches, sub-index trees, and forecast
// results. Everything here is plain data; behavior lives in the sibling
// packages.
package datatypes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codethor0/human-behaviour-convergence-sub001/pkg/validation"
)

// RegionType classifies the geographic granularity of a region.
type RegionType string

const (
	RegionTypeCity    RegionType = "city"
	RegionTypeState   RegionType = "state"
	RegionTypeCountry RegionType = "country"
	RegionTypeCustom  RegionType = "custom"
)

// validRegionTypes is the closed set accepted at ingress.
var validRegionTypes = map[RegionType]bool{
	RegionTypeCity:    true,
	RegionTypeState:   true,
	RegionTypeCountry: true,
	RegionTypeCustom:  true,
}

// Region identifies a geographic area tracked by the engine.
//
// Regions are loaded once at startup and immutable thereafter. The ID is
// the sole key and appears as the `region` label on every emitted metric,
// so it must never be empty or the literal string "None".
type Region struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Country     string     `yaml:"country" json:"country"`
	RegionType  RegionType `yaml:"region_type" json:"region_type"`
	Lat         float64    `yaml:"lat" json:"lat"`
	Lon         float64    `yaml:"lon" json:"lon"`
	RegionGroup string     `yaml:"region_group,omitempty" json:"region_group,omitempty"`
}

// Validate checks the region against the ingress invariants.
//
// Rejected: malformed ids, the literal id "None" (a serialization artifact
// that would poison metric label sets), out-of-range coordinates, and
// unknown region types. An empty region type defaults to custom.
func (r *Region) Validate() error {
	if err := validation.ValidateIdentifier(r.ID); err != nil {
		return fmt.Errorf("region id: %w", err)
	}
	if r.ID == "None" {
		return fmt.Errorf("region id %q is reserved and invalid", r.ID)
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", r.Lat)
	}
	if r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", r.Lon)
	}
	if r.RegionType == "" {
		r.RegionType = RegionTypeCustom
	}
	if !validRegionTypes[r.RegionType] {
		return fmt.Errorf("unknown region type %q", r.RegionType)
	}
	return nil
}

// RegionSet is the immutable catalog of regions known at startup.
//
// Lookup is by id; enumeration preserves file order.
type RegionSet struct {
	regions []Region
	byID    map[string]*Region
}

// regionFile is the YAML envelope for a region catalog file.
type regionFile struct {
	Regions []Region `yaml:"regions"`
}

// NewRegionSet builds a catalog from a validated region list.
//
// Duplicate ids are rejected; every region is validated on the way in.
func NewRegionSet(regions []Region) (*RegionSet, error) {
	set := &RegionSet{
		regions: make([]Region, 0, len(regions)),
		byID:    make(map[string]*Region, len(regions)),
	}
	for i := range regions {
		r := regions[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("region %d (%q): %w", i, r.ID, err)
		}
		if _, dup := set.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region id %q", r.ID)
		}
		set.regions = append(set.regions, r)
		set.byID[r.ID] = &set.regions[len(set.regions)-1]
	}
	return set, nil
}

// LoadRegionSet reads a YAML region catalog from disk.
func LoadRegionSet(path string) (*RegionSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region catalog: %w", err)
	}
	var file regionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse region catalog: %w", err)
	}
	if len(file.Regions) == 0 {
		return nil, fmt.Errorf("region catalog %s contains no regions", path)
	}
	return NewRegionSet(file.Regions)
}

// DefaultRegions returns the built-in catalog used when no catalog file is
// configured. Also the fixture set for the variance probe.
func DefaultRegions() *RegionSet {
	set, err := NewRegionSet([]Region{
		{ID: "us_il", Name: "Illinois", Country: "US", RegionType: RegionTypeState, Lat: 40.0, Lon: -89.0},
		{ID: "us_az", Name: "Arizona", Country: "US", RegionType: RegionTypeState, Lat: 34.0, Lon: -112.0},
		{ID: "us_ny", Name: "New York", Country: "US", RegionType: RegionTypeState, Lat: 43.0, Lon: -75.0},
		{ID: "us_tx", Name: "Texas", Country: "US", RegionType: RegionTypeState, Lat: 31.0, Lon: -100.0},
	})
	if err != nil {
		// The built-in catalog is a compile-time constant in all but syntax.
		panic(err)
	}
	return set
}

// Get returns the region for an id, or false if unknown.
func (s *RegionSet) Get(id string) (Region, bool) {
	r, ok := s.byID[id]
	if !ok {
		return Region{}, false
	}
	return *r, true
}

// All returns the regions in catalog order. The slice is a copy.
func (s *RegionSet) All() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// Len returns the number of cataloged regions.
func (s *RegionSet) Len() int {
	return len(s.regions)
}
