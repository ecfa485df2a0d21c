// Package report serializes allocation, comparison and high-risk results to
// their external JSON and CSV shapes. All rounding happens here, once, so
// every format shows the same figures.
package report

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/compare"
	"github.com/sells-group/prism/internal/money"
	"github.com/sells-group/prism/internal/rank"
)

// Algorithm names the selection method in optimization reports.
const Algorithm = "Risk-to-Cost Ratio (RCR) Optimization"

// Formatter builds report shapes. Year anchors the asset ages quoted in
// justifications.
type Formatter struct {
	Year int
}

// NewFormatter creates a Formatter anchored at year.
func NewFormatter(year int) Formatter {
	return Formatter{Year: year}
}

// Summary aggregates an allocation.
type Summary struct {
	BridgesSelected          int     `json:"bridges_selected"`
	RoadsSelected            int     `json:"roads_selected"`
	TotalSelected            int     `json:"total_infrastructure_selected"`
	TotalCost                float64 `json:"total_cost"`
	BudgetRemaining          float64 `json:"budget_remaining"`
	BudgetUtilizationPercent float64 `json:"budget_utilization_percent"`
	RiskReductionPercent     float64 `json:"risk_reduction_percent"`
	AvgRiskScore             float64 `json:"avg_risk_score"`
	CriticalBridgesFunded    int     `json:"critical_bridges_funded"`
	CriticalRoadsFunded      int     `json:"critical_roads_funded"`
	CriticalBridgesUnfunded  int     `json:"critical_bridges_unfunded"`
	CriticalRoadsUnfunded    int     `json:"critical_roads_unfunded"`
}

// Optimization is the external shape of an allocation.
type Optimization struct {
	Region           string   `json:"region"`
	Budget           float64  `json:"budget"`
	BudgetDisplay    string   `json:"budget_display"`
	SelectedBridges  []Item   `json:"selected_bridges"`
	SelectedRoads    []Item   `json:"selected_roads"`
	UnfundedCritical []Item   `json:"unfunded_critical"`
	Summary          Summary  `json:"summary"`
	Warnings         []string `json:"warnings"`
	Algorithm        string   `json:"algorithm"`
}

// Selected returns bridges and roads merged back into selection order.
func (o Optimization) Selected() []Item {
	out := make([]Item, 0, len(o.SelectedBridges)+len(o.SelectedRoads))
	bi, ri := 0, 0
	for bi < len(o.SelectedBridges) || ri < len(o.SelectedRoads) {
		switch {
		case ri >= len(o.SelectedRoads):
			out = append(out, o.SelectedBridges[bi])
			bi++
		case bi >= len(o.SelectedBridges):
			out = append(out, o.SelectedRoads[ri])
			ri++
		case o.SelectedBridges[bi].Rank < o.SelectedRoads[ri].Rank:
			out = append(out, o.SelectedBridges[bi])
			bi++
		default:
			out = append(out, o.SelectedRoads[ri])
			ri++
		}
	}
	return out
}

// Optimization converts an allocation result. Ranks are 1-based positions in
// the overall selection order.
func (f Formatter) Optimization(region string, res allocate.Result) Optimization {
	out := Optimization{
		Region:           region,
		Budget:           money.Round0(res.Budget),
		BudgetDisplay:    money.FormatMillions(res.Budget),
		SelectedBridges:  []Item{},
		SelectedRoads:    []Item{},
		UnfundedCritical: []Item{},
		Warnings:         append([]string{}, res.Warnings...),
		Algorithm:        Algorithm,
	}
	for i, c := range res.Selected {
		it := f.item(c, i+1)
		if c.Kind() == asset.KindRoad {
			out.SelectedRoads = append(out.SelectedRoads, it)
		} else {
			out.SelectedBridges = append(out.SelectedBridges, it)
		}
	}
	for _, c := range res.UnfundedCritical {
		out.UnfundedCritical = append(out.UnfundedCritical, f.item(c, 0))
	}

	out.Summary = Summary{
		BridgesSelected:          res.SelectedCounts.Bridges,
		RoadsSelected:            res.SelectedCounts.Roads,
		TotalSelected:            res.SelectedCounts.Total(),
		TotalCost:                money.Round0(res.TotalCost),
		BudgetRemaining:          money.Round0(res.Remaining),
		BudgetUtilizationPercent: money.Round1(res.UtilizationPct()),
		RiskReductionPercent:     money.Round1(res.RiskReductionPct),
		AvgRiskScore:             money.Round1(res.AvgRisk()),
		CriticalBridgesFunded:    res.CriticalFunded.Bridges,
		CriticalRoadsFunded:      res.CriticalFunded.Roads,
		CriticalBridgesUnfunded:  res.CriticalUnfunded.Bridges,
		CriticalRoadsUnfunded:    res.CriticalUnfunded.Roads,
	}
	return out
}

// Approach summarizes one side of a comparison.
type Approach struct {
	BridgesRepaired      int     `json:"bridges_repaired"`
	RoadsRepaired        int     `json:"roads_repaired"`
	TotalSpent           float64 `json:"total_spent"`
	RiskReduction        float64 `json:"risk_reduction"`
	RiskReductionPercent float64 `json:"risk_reduction_percent"`
	AvgRiskScore         float64 `json:"avg_risk_score"`
}

// Improvement is the relative gain of the RCR approach.
type Improvement struct {
	Percent     float64 `json:"percent"`
	Description string  `json:"description"`
}

// Comparison is the external shape of a comparison result.
type Comparison struct {
	AIOptimized Approach    `json:"ai_optimized"`
	Traditional Approach    `json:"traditional"`
	Improvement Improvement `json:"improvement"`
}

func approach(res allocate.Result) Approach {
	return Approach{
		BridgesRepaired:      res.SelectedCounts.Bridges,
		RoadsRepaired:        res.SelectedCounts.Roads,
		TotalSpent:           money.Round0(res.TotalCost),
		RiskReduction:        money.Round1(res.SelectedRisk),
		RiskReductionPercent: money.Round1(res.RiskReductionPct),
		AvgRiskScore:         money.Round1(res.AvgRisk()),
	}
}

// Comparison converts a comparison result.
func (f Formatter) Comparison(res compare.Result) Comparison {
	return Comparison{
		AIOptimized: approach(res.AI),
		Traditional: approach(res.Traditional),
		Improvement: Improvement{
			Percent:     money.Round1(res.ImprovementPct),
			Description: res.Description,
		},
	}
}

// HighRisk lists every HIGH or CRITICAL candidate without a budget.
type HighRisk struct {
	Region                 string  `json:"region"`
	Class                  string  `json:"class"`
	TotalCount             int     `json:"total_count"`
	CriticalCount          int     `json:"critical_count"`
	TotalRepairCost        float64 `json:"total_repair_cost"`
	TotalRepairCostDisplay string  `json:"total_repair_cost_display"`
	CriticalRepairCost     float64 `json:"critical_repair_cost"`
	TotalLengthKm          float64 `json:"total_length_km,omitempty"`
	Items                  []Item  `json:"items"`
}

// HighRisk converts an already-filtered, ranked list of candidates.
func (f Formatter) HighRisk(region, class string, candidates []rank.Candidate) HighRisk {
	out := HighRisk{Region: region, Class: class, Items: []Item{}}
	var total, critical, length float64
	for _, c := range candidates {
		out.Items = append(out.Items, f.item(c, 0))
		total += c.Cost.Point
		if c.IsCritical() {
			out.CriticalCount++
			critical += c.Cost.Point
		}
		if c.Kind() == asset.KindRoad {
			length += c.Record.Road.LengthKm()
		}
	}
	out.TotalCount = len(candidates)
	out.TotalRepairCost = money.Round0(total)
	out.TotalRepairCostDisplay = money.Format(total)
	out.CriticalRepairCost = money.Round0(critical)
	out.TotalLengthKm = money.Round2(length)
	return out
}

// JSON renders v as indented JSON with a trailing newline.
func JSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal json")
	}
	return append(b, '\n'), nil
}
