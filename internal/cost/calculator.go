// Package cost estimates repair costs for bridges and road sections.
package cost

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prism/internal/asset"
)

// Uncertainty band applied to every point estimate.
const (
	LowFactor  = 0.8
	HighFactor = 1.2
)

// ErrUnknownRegion is returned when a record's region has no cost table entry.
var ErrUnknownRegion = eris.New("cost: unknown region")

// Estimate is a repair cost with its fixed uncertainty range.
type Estimate struct {
	Point float64 `json:"point"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// NewEstimate builds an Estimate around point.
func NewEstimate(point float64) Estimate {
	return Estimate{Point: point, Low: point * LowFactor, High: point * HighFactor}
}

// Millions returns the point estimate in millions.
func (e Estimate) Millions() float64 {
	return e.Point / 1_000_000
}

// Calculator computes repair cost estimates from a set of tables.
type Calculator struct {
	tables Tables
	year   int
	major  map[string]bool
}

// NewCalculator creates a Calculator with the given tables, anchored at year
// for age-based multipliers.
func NewCalculator(tables Tables, year int) *Calculator {
	major := make(map[string]bool, len(tables.MajorHighways))
	for _, h := range tables.MajorHighways {
		major[strings.ToUpper(strings.TrimSpace(h))] = true
	}
	return &Calculator{tables: tables, year: year, major: major}
}

// Tables returns the tables backing the calculator.
func (c *Calculator) Tables() Tables {
	return c.tables
}

// Estimate returns the repair cost of rec.
func (c *Calculator) Estimate(rec asset.Record) (Estimate, error) {
	region, ok := c.tables.ResolveRegion(rec.Region())
	if !ok {
		return Estimate{}, eris.Wrapf(ErrUnknownRegion, "asset %s region %q", rec.ID(), rec.Region())
	}

	var point float64
	switch rec.Kind {
	case asset.KindBridge:
		point = c.bridge(rec.Bridge, region)
	case asset.KindRoad:
		point = c.road(rec.Road, region)
	default:
		return Estimate{}, eris.Errorf("cost: asset %s has unknown kind %q", rec.ID(), rec.Kind)
	}

	if point <= 0 {
		return Estimate{}, eris.Errorf("cost: asset %s estimated at non-positive cost %.2f", rec.ID(), point)
	}
	return NewEstimate(point), nil
}

func (c *Calculator) bridge(b *asset.Bridge, region string) float64 {
	cost := c.tables.BridgeBaseCost[region]
	cost *= multiplier(c.tables.BridgeCondition, b.Condition)
	cost *= c.highwayMultiplier(b.Highway)
	if b.YearBuilt != nil {
		cost *= c.ageMultiplier(c.year - *b.YearBuilt)
	}
	return cost
}

func (c *Calculator) road(r *asset.Road, region string) float64 {
	cost := c.tables.RoadCostPerKm[region] * r.LengthKm()
	cost *= multiplier(c.tables.RoadCondition, r.Condition)
	cost *= multiplier(c.tables.Pavement, r.Pavement)
	if r.AADT != nil && *r.AADT > c.tables.HighTrafficAADT {
		cost *= c.tables.HighTrafficMul
	}
	return cost
}

// IsMajorHighway reports whether the designation names an allow-listed
// major highway.
func (c *Calculator) IsMajorHighway(highway string) bool {
	upper := strings.ToUpper(highway)
	upper = strings.ReplaceAll(upper, "TRANS CANADA", "TRANS-CANADA")
	tokens := strings.FieldsFunc(upper, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for _, tok := range tokens {
		if c.major[tok] {
			return true
		}
	}
	return false
}

func (c *Calculator) highwayMultiplier(highway string) float64 {
	if strings.TrimSpace(highway) == "" {
		return 1.0
	}
	if c.IsMajorHighway(highway) {
		return c.tables.MajorHighwayMul
	}
	return c.tables.NamedHighwayMul
}

func (c *Calculator) ageMultiplier(age int) float64 {
	switch {
	case age > 50:
		return c.tables.AgeOver50Mul
	case age > 40:
		return c.tables.AgeOver40Mul
	default:
		return 1.0
	}
}

// multiplier looks up k, defaulting to 1.0 for keys the table leaves out.
func multiplier[K comparable](table map[K]float64, k K) float64 {
	if m, ok := table[k]; ok {
		return m
	}
	return 1.0
}
