// Package rank turns asset records into scored candidates ordered by
// Risk-to-Cost Ratio (RCR).
package rank

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/cost"
	"github.com/sells-group/prism/internal/risk"
)

// Scorer computes a 0-100 risk score for a record.
type Scorer interface {
	Score(rec asset.Record) float64
}

// Estimator computes a repair cost for a record.
type Estimator interface {
	Estimate(rec asset.Record) (cost.Estimate, error)
}

// Candidate is an asset with its risk score, cost estimate and RCR.
type Candidate struct {
	Record asset.Record
	Risk   float64
	Cost   cost.Estimate
	RCR    float64
}

// Tier returns the risk classification of the candidate.
func (c Candidate) Tier() risk.Tier { return risk.Classify(c.Risk) }

// IsCritical reports whether the candidate is in the critical tier.
func (c Candidate) IsCritical() bool { return risk.IsCritical(c.Risk) }

// IsHighRisk reports whether the candidate is HIGH or CRITICAL.
func (c Candidate) IsHighRisk() bool { return risk.IsHighRisk(c.Risk) }

// ID returns the wrapped asset's identifier.
func (c Candidate) ID() string { return c.Record.ID() }

// Kind returns the wrapped asset's class.
func (c Candidate) Kind() asset.Kind { return c.Record.Kind }

// NewCandidate scores and prices rec. Records must already have passed
// asset.Record.Validate.
func NewCandidate(rec asset.Record, s Scorer, e Estimator) (Candidate, error) {
	est, err := e.Estimate(rec)
	if err != nil {
		return Candidate{}, eris.Wrapf(err, "rank: estimate %s", rec.ID())
	}
	score := s.Score(rec)
	return Candidate{
		Record: rec,
		Risk:   score,
		Cost:   est,
		RCR:    score / est.Millions(),
	}, nil
}

// Build scores and prices every record. It fails on the first record that
// cannot be priced.
func Build(records []asset.Record, s Scorer, e Estimator) ([]Candidate, error) {
	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		c, err := NewCandidate(rec, s, e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Compare orders a before b when a has the higher RCR, then the higher risk
// score, then the lexically smaller ID.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(b.RCR, a.RCR); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Risk, a.Risk); c != 0 {
		return c
	}
	return cmp.Compare(a.ID(), b.ID())
}

// Rank returns a new slice of candidates in RCR order. The input is not
// modified.
func Rank(candidates []Candidate) []Candidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, Compare)
	return out
}
