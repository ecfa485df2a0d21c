// Package compare measures RCR-ranked allocation against a traditional
// oldest-first baseline over the same pool and budget.
package compare

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/rank"
)

// Result holds both allocations and the relative improvement of the
// RCR-ranked one.
type Result struct {
	AI             allocate.Result
	Traditional    allocate.Result
	ImprovementPct float64
	Description    string
}

// Compare filters candidates with the default allocation options, then fills
// the budget twice: once in RCR order and once oldest first. year anchors
// asset ages for the baseline ordering.
func Compare(candidates []rank.Candidate, budget float64, year int) Result {
	pool := allocate.Filter(rank.Rank(candidates), allocate.DefaultOptions())

	ai := allocate.Fill(pool, budget)
	trad := allocate.Fill(OldestFirst(pool, year), budget)

	improvement := Improvement(ai.SelectedRisk, trad.SelectedRisk)
	return Result{
		AI:             ai,
		Traditional:    trad,
		ImprovementPct: improvement,
		Description:    Describe(improvement),
	}
}

// OldestFirst returns a copy of candidates ordered by descending age. Assets
// with no known age sort as the oldest. Equal ages fall back to ID order.
func OldestFirst(candidates []rank.Candidate, year int) []rank.Candidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b rank.Candidate) int {
		if c := cmp.Compare(ageKey(b, year), ageKey(a, year)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return out
}

func ageKey(c rank.Candidate, year int) int {
	age, ok := c.Record.Age(year)
	if !ok {
		return math.MaxInt
	}
	return age
}

// Improvement returns the percentage gain of ai over trad. A zero baseline
// yields zero rather than an unbounded figure.
func Improvement(ai, trad float64) float64 {
	if trad == 0 {
		return 0
	}
	return (ai - trad) / trad * 100
}

// Describe renders an improvement percentage as a one-line summary.
func Describe(improvement float64) string {
	direction := "LESS"
	if improvement > 0 {
		direction = "MORE"
	}
	outcome := "similar"
	switch {
	case improvement > 20:
		outcome = "significantly better"
	case improvement > 0:
		outcome = "better"
	}
	return fmt.Sprintf("%.0f%% %s EFFECTIVE - Same budget, %s outcome", math.Abs(improvement), direction, outcome)
}
