package report

import (
	"fmt"
	"strings"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/money"
	"github.com/sells-group/prism/internal/rank"
)

// Item is the external shape of one bridge or road-section candidate.
// Class-specific fields are omitted for the other class.
type Item struct {
	Rank               int      `json:"rank,omitempty"`
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Name               string   `json:"name,omitempty"`
	Highway            string   `json:"highway,omitempty"`
	SectionDescription string   `json:"section_description,omitempty"`
	Region             string   `json:"region"`
	Condition          string   `json:"condition"`
	ConditionIndex     *float64 `json:"condition_index,omitempty"`
	YearBuilt          *int     `json:"year_built,omitempty"`
	StructureType      string   `json:"structure_type,omitempty"`
	LastInspection     string   `json:"last_inspection,omitempty"`
	Direction          string   `json:"direction,omitempty"`
	KmStart            *float64 `json:"km_start,omitempty"`
	KmEnd              *float64 `json:"km_end,omitempty"`
	LengthKm           float64  `json:"length_km,omitempty"`
	PCI                *float64 `json:"pci,omitempty"`
	DMI                *float64 `json:"dmi,omitempty"`
	IRI                *float64 `json:"iri,omitempty"`
	PavementType       string   `json:"pavement_type,omitempty"`
	AADT               *int     `json:"aadt,omitempty"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	RiskScore          float64  `json:"risk_score"`
	RiskLevel          string   `json:"risk_level"`
	EstimatedCost      float64  `json:"estimated_repair_cost"`
	CostDisplay        string   `json:"cost_display"`
	CostPerKm          float64  `json:"cost_per_km,omitempty"`
	CostRangeLow       float64  `json:"cost_range_low"`
	CostRangeHigh      float64  `json:"cost_range_high"`
	RiskCostRatio      float64  `json:"risk_cost_ratio"`
	IsCritical         bool     `json:"is_critical"`
	IsHighRisk         bool     `json:"is_high_risk"`
	Justification      string   `json:"justification"`
}

// item converts a candidate to its external shape. rankPos of 0 omits the rank.
func (f Formatter) item(c rank.Candidate, rankPos int) Item {
	it := Item{
		Rank:          rankPos,
		ID:            c.ID(),
		Type:          string(c.Kind()),
		Region:        c.Record.Region(),
		Condition:     string(c.Record.Condition()),
		RiskScore:     money.Round1(c.Risk),
		RiskLevel:     string(c.Tier()),
		EstimatedCost: money.Round0(c.Cost.Point),
		CostDisplay:   money.Format(c.Cost.Point),
		CostRangeLow:  money.RoundThousand(c.Cost.Low),
		CostRangeHigh: money.RoundThousand(c.Cost.High),
		RiskCostRatio: money.Round2(c.RCR),
		IsCritical:    c.IsCritical(),
		IsHighRisk:    c.IsHighRisk(),
	}

	switch c.Kind() {
	case asset.KindBridge:
		b := c.Record.Bridge
		it.Name = b.Name
		it.Highway = b.Highway
		it.ConditionIndex = b.ConditionIndex
		it.YearBuilt = b.YearBuilt
		it.StructureType = b.StructureType
		it.LastInspection = b.LastInspection
		it.Latitude = b.Latitude
		it.Longitude = b.Longitude
		it.Justification = f.bridgeJustification(c)
	case asset.KindRoad:
		r := c.Record.Road
		it.Highway = r.Highway
		it.SectionDescription = SectionDescription(r)
		it.Direction = r.Direction
		it.KmStart = r.KmStart
		it.KmEnd = r.KmEnd
		it.LengthKm = money.Round2(r.LengthKm())
		it.PCI = r.PCI
		it.DMI = r.DMI
		it.IRI = r.IRI
		it.PavementType = string(r.Pavement)
		it.AADT = r.AADT
		it.Latitude = r.Latitude
		it.Longitude = r.Longitude
		it.CostPerKm = money.Round0(c.Cost.Point / r.LengthKm())
		it.Justification = roadJustification(c)
	}
	return it
}

// DisplayName is the bridge name or the road section description.
func (it Item) DisplayName() string {
	if it.Type == string(asset.KindRoad) {
		return it.SectionDescription
	}
	return it.Name
}

// SectionDescription summarizes where a road section runs.
func SectionDescription(r *asset.Road) string {
	switch {
	case r.SectionFrom != "" && r.SectionTo != "":
		return fmt.Sprintf("%s: %s to %s", r.Highway, r.SectionFrom, r.SectionTo)
	case r.KmStart != nil && r.KmEnd != nil:
		return fmt.Sprintf("%s (km %.1f - %.1f)", r.Highway, *r.KmStart, *r.KmEnd)
	default:
		return r.Highway
	}
}

const standardPriority = "Standard maintenance priority"

func commonFactors(c rank.Candidate) []string {
	var factors []string
	switch {
	case c.IsCritical():
		factors = append(factors, "CRITICAL condition requiring immediate attention")
	case c.IsHighRisk():
		factors = append(factors, "HIGH risk score indicates urgent repair need")
	}
	switch {
	case c.RCR > 20:
		factors = append(factors, "Excellent risk-to-cost ratio (high value investment)")
	case c.RCR > 15:
		factors = append(factors, "Good risk-to-cost ratio")
	}
	return factors
}

func (f Formatter) bridgeJustification(c rank.Candidate) string {
	b := c.Record.Bridge
	factors := commonFactors(c)
	if b.Highway != "" {
		factors = append(factors, fmt.Sprintf("Located on %s (high traffic impact)", b.Highway))
	}
	if age, ok := c.Record.Age(f.Year); ok && age > 50 {
		factors = append(factors, fmt.Sprintf("Aging infrastructure (%d years old)", age))
	}
	return joinFactors(factors)
}

func roadJustification(c rank.Candidate) string {
	r := c.Record.Road
	factors := commonFactors(c)
	if r.PCI != nil && *r.PCI < 50 {
		factors = append(factors, fmt.Sprintf("Low PCI score (%.0f/100)", *r.PCI))
	}
	if r.IRI != nil && *r.IRI > 3.0 {
		factors = append(factors, fmt.Sprintf("High roughness index (IRI: %.1f)", *r.IRI))
	}
	if r.AADT != nil {
		switch {
		case *r.AADT > 50_000:
			factors = append(factors, fmt.Sprintf("Very high traffic (%s AADT)", money.FormatInt(*r.AADT)))
		case *r.AADT > 20_000:
			factors = append(factors, fmt.Sprintf("High traffic (%s AADT)", money.FormatInt(*r.AADT)))
		}
	}
	if l := r.LengthKm(); l > 5 {
		factors = append(factors, fmt.Sprintf("Extended section (%.1f km)", l))
	}
	return joinFactors(factors)
}

func joinFactors(factors []string) string {
	if len(factors) == 0 {
		return standardPriority
	}
	return strings.Join(factors, "; ")
}
