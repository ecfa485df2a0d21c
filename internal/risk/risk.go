// Package risk scores bridges and road sections on a 0-100 risk scale.
package risk

import (
	"math"

	"github.com/sells-group/prism/internal/asset"
)

// Tier is the classification of a risk score.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Tier thresholds. A score strictly above CriticalThreshold is critical.
const (
	CriticalThreshold = 85.0
	HighThreshold     = 70.0
	MediumThreshold   = 55.0
)

// Classify maps a score onto its tier.
func Classify(score float64) Tier {
	switch {
	case score > CriticalThreshold:
		return TierCritical
	case score >= HighThreshold:
		return TierHigh
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// IsCritical reports whether score falls in the critical tier.
func IsCritical(score float64) bool { return score > CriticalThreshold }

// IsHighRisk reports whether score is HIGH or CRITICAL.
func IsHighRisk(score float64) bool { return score >= HighThreshold }

// baseConditionScore is the starting risk for each condition rating.
var baseConditionScore = map[asset.Condition]float64{
	asset.ConditionCritical:  95,
	asset.ConditionPoor:      80,
	asset.ConditionFair:      55,
	asset.ConditionGood:      25,
	asset.ConditionExcellent: 10,
}

// BaseConditionScore returns the starting risk for c.
func BaseConditionScore(c asset.Condition) float64 {
	return baseConditionScore[c]
}

// Scorer computes risk scores relative to a fixed current year.
type Scorer struct {
	Year int
}

// NewScorer creates a Scorer anchored at year.
func NewScorer(year int) Scorer {
	return Scorer{Year: year}
}

// Score returns the clamped 0-100 risk score of rec.
func (s Scorer) Score(rec asset.Record) float64 {
	switch rec.Kind {
	case asset.KindBridge:
		return s.scoreBridge(rec.Bridge)
	case asset.KindRoad:
		return scoreRoad(rec.Road)
	}
	return 0
}

func (s Scorer) scoreBridge(b *asset.Bridge) float64 {
	score := BaseConditionScore(b.Condition)
	if b.YearBuilt != nil {
		score += ageAdjustment(s.Year - *b.YearBuilt)
	}
	// A deteriorated index replaces, not adds to, the condition-plus-age figure.
	if b.ConditionIndex != nil {
		score = math.Max(score, 100-*b.ConditionIndex)
	}
	return clamp(score)
}

// ageAdjustment adds 0.3 points per year beyond 30, capped at 20.
func ageAdjustment(age int) float64 {
	over := float64(age - 30)
	if over <= 0 {
		return 0
	}
	return math.Min(20, over*0.3)
}

func scoreRoad(r *asset.Road) float64 {
	score := BaseConditionScore(r.Condition)
	if r.PCI != nil {
		score += 100 - *r.PCI
	}
	if r.IRI != nil {
		score += iriAdjustment(*r.IRI)
	}
	if r.DMI != nil {
		score += dmiAdjustment(*r.DMI)
	}
	if r.AADT != nil {
		score += trafficAdjustment(*r.AADT)
	}
	return clamp(score)
}

func iriAdjustment(iri float64) float64 {
	switch {
	case iri > 4.0:
		return 15
	case iri >= 2.5:
		return 8
	default:
		return 0
	}
}

func dmiAdjustment(dmi float64) float64 {
	switch {
	case dmi > 70:
		return 10
	case dmi >= 50:
		return 5
	default:
		return 0
	}
}

func trafficAdjustment(aadt int) float64 {
	switch {
	case aadt > 50_000:
		return 10
	case aadt >= 20_000:
		return 5
	default:
		return 0
	}
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
