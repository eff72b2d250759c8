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
	"fmt"
)

// Registry is the static catalog of registered connectors.
//
// Registration order is preserved: enumeration, fan-out scheduling, and
// the /sources endpoint all walk sources in the order they were added.
// The registry is built once at startup and read-only afterwards.
type Registry struct {
	order      []string
	connectors map[string]Connector
}

// NewRegistry builds a registry over the given connectors.
//
// Duplicate source ids are a configuration error: the catalog is the
// single integration gate, and two connectors claiming one id means the
// deployment is wired wrong.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	r := &Registry{
		connectors: make(map[string]Connector, len(connectors)),
	}
	for _, c := range connectors {
		def := c.Definition()
		if def.ID == "" {
			return nil, fmt.Errorf("connector with empty source id")
		}
		if _, dup := r.connectors[def.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", def.ID)
		}
		r.order = append(r.order, def.ID)
		r.connectors[def.ID] = c
	}
	return r, nil
}

// DefaultRegistry wires the full production connector set in registry
// order. Deps decides offline mode and credentials.
func DefaultRegistry(deps Deps) (*Registry, error) {
	return NewRegistry(
		NewMarketConnector(deps),
		NewFuelConnector(deps),
		NewSentimentConnector(deps),
		NewWeatherConnector(deps),
		NewDroughtConnector(deps),
		NewStormsConnector(deps),
		NewMobilityConnector(deps),
		NewTransitConnector(deps),
		NewMediaConnector(deps),
		NewSearchConnector(deps),
		NewHealthConnector(deps),
	)
}

// KeyEnvVars returns the credential variables declared by the default
// connector set, in registration order. Config forwards exactly these,
// so a connector's KeyEnvVar declaration is the single source of truth.
func KeyEnvVars() []string {
	reg, err := DefaultRegistry(Deps{})
	if err != nil {
		// The default set is a compile-time constant in all but syntax.
		panic(err)
	}
	var out []string
	for _, def := range reg.Definitions() {
		if def.KeyEnvVar != "" {
			out = append(out, def.KeyEnvVar)
		}
	}
	return out
}

// Get returns the connector for a source id.
func (r *Registry) Get(id string) (Connector, bool) {
	c, ok := r.connectors[id]
	return c, ok
}

// All returns connectors in registration order.
func (r *Registry) All() []Connector {
	out := make([]Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.connectors[id])
	}
	return out
}

// Definitions returns the registry entries in registration order.
func (r *Registry) Definitions() []SourceDefinition {
	out := make([]SourceDefinition, 0, len(r.order))
	for _, c := range r.All() {
		out = append(out, c.Definition())
	}
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.order)
}
