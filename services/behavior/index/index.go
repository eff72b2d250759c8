// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index computes the hierarchical behavior index: normalized
// feature columns roll up into five weighted parent sub-indices, which
// roll up into a single composite stress score in [0,1].
package index

import (
	"fmt"
	"math"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/harmonize"
)

// CompositeFeature is the output column name of the rolled-up index.
const CompositeFeature = "composite_behavior_index"

// neutralValue is the composite when every input is missing: no
// evidence either way.
const neutralValue = 0.5

// ChildSpec binds one normalized feature to a parent sub-index.
type ChildSpec struct {
	Feature  string
	SourceID string
	Weight   float64

	// Invert flips activity-style signals (high raw value = calm)
	// into stress orientation before aggregation.
	Invert bool
}

// ParentSpec is one of the five top-level sub-indices.
type ParentSpec struct {
	Name     string
	Weight   float64
	Children []ChildSpec
}

// Tree is a validated index configuration. Weights are renormalized at
// construction: each level's weights are divided by their sum, so the
// effective weights always sum to 1 over the configured nodes.
type Tree struct {
	parents []ParentSpec
}

// NewTree validates and renormalizes a parent/child spec.
//
// Negative weights, an empty tree, or an all-zero weight level are
// configuration errors, not data errors: the caller should refuse to
// start rather than serve a silently wrong index.
func NewTree(specs []ParentSpec) (*Tree, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("index tree: no parent sub-indices configured")
	}
	var parentSum float64
	for _, p := range specs {
		if p.Weight < 0 {
			return nil, fmt.Errorf("index tree: parent %q has negative weight %v", p.Name, p.Weight)
		}
		parentSum += p.Weight
		if len(p.Children) == 0 {
			return nil, fmt.Errorf("index tree: parent %q has no children", p.Name)
		}
		var childSum float64
		for _, c := range p.Children {
			if c.Weight < 0 {
				return nil, fmt.Errorf("index tree: child %q of %q has negative weight %v", c.Feature, p.Name, c.Weight)
			}
			childSum += c.Weight
		}
		if childSum == 0 {
			return nil, fmt.Errorf("index tree: parent %q has all-zero child weights", p.Name)
		}
	}
	if parentSum == 0 {
		return nil, fmt.Errorf("index tree: all parent weights are zero")
	}

	out := make([]ParentSpec, len(specs))
	for i, p := range specs {
		out[i] = p
		out[i].Weight = p.Weight / parentSum
		var childSum float64
		for _, c := range p.Children {
			childSum += c.Weight
		}
		children := make([]ChildSpec, len(p.Children))
		for j, c := range p.Children {
			children[j] = c
			children[j].Weight = c.Weight / childSum
		}
		out[i].Children = children
	}
	return &Tree{parents: out}, nil
}

// DefaultSpecs is the canonical five-parent layout. Child weights are
// equal within each parent; inversion flags come from the source
// definitions and are applied by the caller via ApplyInversion.
func DefaultSpecs() []ParentSpec {
	child := func(feature, source string) ChildSpec {
		return ChildSpec{Feature: feature, SourceID: source, Weight: 1}
	}
	return []ParentSpec{
		{
			Name:   "economic_stress",
			Weight: 0.25,
			Children: []ChildSpec{
				child("market_volatility", "market"),
				child("fuel_stress", "fuel"),
				child("consumer_sentiment", "sentiment"),
			},
		},
		{
			Name:   "environmental_stress",
			Weight: 0.25,
			Children: []ChildSpec{
				child("weather_discomfort", "weather"),
				child("heatwave_stress", "weather"),
				child("drought_stress", "drought"),
				child("storm_severity_stress", "storms"),
				child("flood_risk_stress", "storms"),
			},
		},
		{
			Name:   "mobility_activity",
			Weight: 0.20,
			Children: []ChildSpec{
				child("osm_activity", "mobility"),
				child("transit_activity", "transit"),
			},
		},
		{
			Name:   "digital_attention",
			Weight: 0.15,
			Children: []ChildSpec{
				child("media_attention", "media"),
				child("search_interest", "search"),
			},
		},
		{
			Name:   "public_health_stress",
			Weight: 0.15,
			Children: []ChildSpec{
				child("health_risk_proxy", "health"),
			},
		},
	}
}

// ApplyInversion marks children whose source declares an activity-style
// orientation. inverted is keyed by source id.
func ApplyInversion(specs []ParentSpec, inverted map[string]bool) []ParentSpec {
	for i := range specs {
		for j := range specs[i].Children {
			if inverted[specs[i].Children[j].SourceID] {
				specs[i].Children[j].Invert = true
			}
		}
	}
	return specs
}

// Result is the computed index: the composite daily series plus the
// latest-day node tree and flattened contributions.
type Result struct {
	Series        *datatypes.DailySeries
	Tree          datatypes.SubIndexNode
	Contributions []datatypes.Contribution

	// AllMissing is set when no child had any value on the latest day,
	// so the composite is the neutral midpoint.
	AllMissing bool
}

// Compute rolls the normalized feature matrix up through the tree.
//
// Per day and per parent, the parent value is the weighted mean over
// its present children with weights renormalized to the present set; a
// parent with no present children is itself missing. The composite is
// the same aggregation over present parents. A day with no present
// parents gets the neutral 0.5.
func (t *Tree) Compute(h *harmonize.Result) *Result {
	days := 0
	if h.Normalized != nil {
		days = h.Normalized.Len()
	}
	res := &Result{
		Series: datatypes.NewDailySeries(h.Start, days, CompositeFeature),
	}
	if days == 0 {
		res.AllMissing = true
		res.Tree = datatypes.SubIndexNode{
			Name: CompositeFeature, Kind: datatypes.NodeComposite,
			Present: false, Value: neutralValue, Weight: 1,
		}
		return res
	}

	for i := 0; i < days; i++ {
		v, _ := t.computeDay(h.Normalized, i)
		res.Series.Set(CompositeFeature, i, v)
	}

	_, node := t.computeDay(h.Normalized, days-1)
	res.Tree = node
	res.AllMissing = !node.Present
	res.Contributions = flatten(node)
	return res
}

// computeDay evaluates the full tree for one day index.
func (t *Tree) computeDay(m *datatypes.DailySeries, day int) (float64, datatypes.SubIndexNode) {
	root := datatypes.SubIndexNode{
		Name:   CompositeFeature,
		Kind:   datatypes.NodeComposite,
		Weight: 1,
	}

	var sum, weightSum float64
	for _, p := range t.parents {
		pnode := datatypes.SubIndexNode{
			Name:   p.Name,
			Kind:   datatypes.NodeParent,
			Weight: p.Weight,
		}
		var csum, cweight float64
		for _, c := range p.Children {
			cnode := datatypes.SubIndexNode{
				Name:   c.Feature,
				Kind:   datatypes.NodeChild,
				Weight: c.Weight,
			}
			v := m.Get(c.Feature, day)
			if !datatypes.IsMissing(v) {
				if c.Invert {
					v = 1 - v
				}
				cnode.Present = true
				cnode.Value = v
				cnode.ContributingSources = []string{c.SourceID}
				csum += v * c.Weight
				cweight += c.Weight
			}
			pnode.Children = append(pnode.Children, cnode)
		}
		if cweight > 0 {
			pnode.Present = true
			pnode.Value = csum / cweight
			sum += pnode.Value * p.Weight
			weightSum += p.Weight
			pnode.ContributingSources = presentSources(pnode.Children)
		}
		root.Children = append(root.Children, pnode)
	}

	if weightSum == 0 {
		root.Present = false
		root.Value = neutralValue
		return neutralValue, root
	}
	root.Present = true
	root.Value = clamp01(sum / weightSum)
	return root.Value, root
}

// flatten emits the (parent, child) contribution quadruples for present
// children, with weights renormalized to the present set so the listed
// weights are the ones actually used.
func flatten(root datatypes.SubIndexNode) []datatypes.Contribution {
	var out []datatypes.Contribution
	for _, p := range root.Children {
		if !p.Present {
			continue
		}
		var presentWeight float64
		for _, c := range p.Children {
			if c.Present {
				presentWeight += c.Weight
			}
		}
		for _, c := range p.Children {
			if !c.Present || presentWeight == 0 {
				continue
			}
			out = append(out, datatypes.Contribution{
				Parent: p.Name,
				Child:  c.Name,
				Value:  c.Value,
				Weight: c.Weight / presentWeight,
			})
		}
	}
	return out
}

func presentSources(children []datatypes.SubIndexNode) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range children {
		for _, s := range c.ContributingSources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
