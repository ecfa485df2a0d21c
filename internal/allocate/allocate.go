// Package allocate selects repair candidates under a budget with a single
// greedy pass over an RCR-ranked list.
package allocate

import (
	"fmt"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/money"
	"github.com/sells-group/prism/internal/rank"
	"github.com/sells-group/prism/internal/risk"
)

// Options controls which candidates enter the pool and how they are ordered.
type Options struct {
	// IncludeMediumRisk keeps MEDIUM candidates (55 <= score < 70) in the pool.
	IncludeMediumRisk bool `json:"include_medium_risk"`
	// IncludeRoads keeps road sections in the pool.
	IncludeRoads bool `json:"include_roads"`
	// PrioritizeCritical funds critical bridges, then critical roads, before
	// the remaining pool in RCR order.
	PrioritizeCritical bool `json:"prioritize_critical"`
}

// DefaultOptions returns the documented defaults: HIGH and CRITICAL only,
// bridges and roads.
func DefaultOptions() Options {
	return Options{IncludeRoads: true}
}

// ClassCounts tallies a figure per asset class.
type ClassCounts struct {
	Bridges int `json:"bridges"`
	Roads   int `json:"roads"`
}

func (c *ClassCounts) add(k asset.Kind) {
	if k == asset.KindRoad {
		c.Roads++
		return
	}
	c.Bridges++
}

// Total returns Bridges + Roads.
func (c ClassCounts) Total() int { return c.Bridges + c.Roads }

// Result is the outcome of one allocation. It is built once and never
// modified afterwards.
type Result struct {
	Budget           float64
	Selected         []rank.Candidate
	TotalCost        float64
	Remaining        float64
	PoolSize         int
	PoolRisk         float64
	SelectedRisk     float64
	RiskReductionPct float64
	SelectedCounts   ClassCounts
	CriticalFunded   ClassCounts
	CriticalUnfunded ClassCounts
	UnfundedCritical []rank.Candidate
	Warnings         []string
}

// AvgRisk returns the mean risk score of the selected candidates.
func (r Result) AvgRisk() float64 {
	if len(r.Selected) == 0 {
		return 0
	}
	return r.SelectedRisk / float64(len(r.Selected))
}

// UtilizationPct returns TotalCost as a percentage of Budget.
func (r Result) UtilizationPct() float64 {
	if r.Budget <= 0 {
		return 0
	}
	return r.TotalCost / r.Budget * 100
}

// SelectedOf returns the selected candidates of class k in selection order.
func (r Result) SelectedOf(k asset.Kind) []rank.Candidate {
	var out []rank.Candidate
	for _, c := range r.Selected {
		if c.Kind() == k {
			out = append(out, c)
		}
	}
	return out
}

// Filter returns the candidates eligible under opts, preserving order.
// LOW candidates are always dropped.
func Filter(candidates []rank.Candidate, opts Options) []rank.Candidate {
	out := make([]rank.Candidate, 0, len(candidates))
	for _, c := range candidates {
		switch c.Tier() {
		case risk.TierLow:
			continue
		case risk.TierMedium:
			if !opts.IncludeMediumRisk {
				continue
			}
		}
		if c.Kind() == asset.KindRoad && !opts.IncludeRoads {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Allocate filters the ranked candidates by opts and greedily funds them in
// order while the budget allows.
func Allocate(ranked []rank.Candidate, budget float64, opts Options) Result {
	pool := Filter(ranked, opts)
	if opts.PrioritizeCritical {
		pool = criticalFirst(pool)
	}
	return Fill(pool, budget)
}

// Fill walks ordered once, selecting every candidate whose cost still fits in
// the budget. There is no partial funding and no backtracking. The pool
// totals used for the risk-reduction percentage are taken from ordered.
func Fill(ordered []rank.Candidate, budget float64) Result {
	res := Result{
		Budget:   budget,
		PoolSize: len(ordered),
		Selected: []rank.Candidate{},
		Warnings: []string{},
	}

	var unfundedCost ClassCosts
	for _, c := range ordered {
		res.PoolRisk += c.Risk
		if res.TotalCost+c.Cost.Point <= budget {
			res.Selected = append(res.Selected, c)
			res.TotalCost += c.Cost.Point
			res.SelectedRisk += c.Risk
			res.SelectedCounts.add(c.Kind())
			if c.IsCritical() {
				res.CriticalFunded.add(c.Kind())
			}
			continue
		}
		if c.IsCritical() {
			res.CriticalUnfunded.add(c.Kind())
			res.UnfundedCritical = append(res.UnfundedCritical, c)
			unfundedCost.add(c.Kind(), c.Cost.Point)
		}
	}

	res.Remaining = budget - res.TotalCost
	if res.PoolRisk > 0 {
		res.RiskReductionPct = res.SelectedRisk / res.PoolRisk * 100
	}

	if n := res.CriticalUnfunded.Bridges; n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Budget insufficient for %d critical bridge(s) requiring %s", n, money.Format(unfundedCost.Bridges)))
	}
	if n := res.CriticalUnfunded.Roads; n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Budget insufficient for %d critical road section(s) requiring %s", n, money.Format(unfundedCost.Roads)))
	}
	return res
}

// ClassCosts sums a cost per asset class.
type ClassCosts struct {
	Bridges float64
	Roads   float64
}

func (c *ClassCosts) add(k asset.Kind, v float64) {
	if k == asset.KindRoad {
		c.Roads += v
		return
	}
	c.Bridges += v
}

// criticalFirst reorders pool into critical bridges, critical roads, then
// everything else, keeping the incoming order within each group.
func criticalFirst(pool []rank.Candidate) []rank.Candidate {
	out := make([]rank.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.IsCritical() && c.Kind() == asset.KindBridge {
			out = append(out, c)
		}
	}
	for _, c := range pool {
		if c.IsCritical() && c.Kind() == asset.KindRoad {
			out = append(out, c)
		}
	}
	for _, c := range pool {
		if !c.IsCritical() {
			out = append(out, c)
		}
	}
	return out
}
