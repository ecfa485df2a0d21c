// Package optimizer composes the scoring, costing, ranking and allocation
// stages behind the four user-facing operations. It validates requests and
// loads region snapshots; the stages themselves stay pure.
package optimizer

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/compare"
	"github.com/sells-group/prism/internal/cost"
	"github.com/sells-group/prism/internal/rank"
	"github.com/sells-group/prism/internal/report"
	"github.com/sells-group/prism/internal/risk"
)

// Request errors. Callers match them with errors.Is.
var (
	ErrInvalidRegion = eris.New("optimizer: invalid region")
	ErrInvalidBudget = eris.New("optimizer: invalid budget")
	ErrInvalidFormat = eris.New("optimizer: invalid export format")
	ErrInvalidClass  = eris.New("optimizer: invalid asset class")
)

// IsRequestError reports whether err was caused by bad caller input.
func IsRequestError(err error) bool {
	for _, target := range []error{ErrInvalidRegion, ErrInvalidBudget, ErrInvalidFormat, ErrInvalidClass} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Class filters high-risk listings by asset class.
type Class string

const (
	ClassAll     Class = "all"
	ClassBridges Class = "bridges"
	ClassRoads   Class = "roads"
)

// ParseClass accepts bridges, roads or all. Empty means all.
func ParseClass(s string) (Class, error) {
	switch c := Class(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ClassAll, nil
	case ClassAll, ClassBridges, ClassRoads:
		return c, nil
	}
	return "", eris.Wrapf(ErrInvalidClass, "%q (want bridges, roads or all)", s)
}

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", eris.Wrapf(ErrInvalidFormat, "%q (want json or csv)", s)
}

// ContentType returns the MIME type of an export.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// OptimizeRequest holds the arguments of Optimize.
type OptimizeRequest struct {
	Region  string
	Budget  float64
	Options allocate.Options
}

// ExportRequest holds the arguments of Export.
type ExportRequest struct {
	Region       string
	Budget       float64
	Format       Format
	IncludeRoads bool
}

// RegionInfo describes one supported region and what is stored for it.
type RegionInfo struct {
	Name    string `json:"name"`
	Bridges int    `json:"bridges"`
	Roads   int    `json:"roads"`
}

// Service runs optimizer operations against a Source. It is safe for
// concurrent use when the Source is.
type Service struct {
	source Source
	tables cost.Tables
	calc   *cost.Calculator
	scorer risk.Scorer
	format report.Formatter
	year   int
}

// NewService creates a Service pricing assets with tables, anchored at year
// for every age computation.
func NewService(src Source, tables cost.Tables, year int) *Service {
	return &Service{
		source: src,
		tables: tables,
		calc:   cost.NewCalculator(tables, year),
		scorer: risk.NewScorer(year),
		format: report.NewFormatter(year),
		year:   year,
	}
}

// ResolveRegion returns the canonical name of region.
func (s *Service) ResolveRegion(region string) (string, error) {
	r, ok := s.tables.ResolveRegion(region)
	if !ok {
		return "", eris.Wrapf(ErrInvalidRegion, "%q (supported: %s)", region, strings.Join(s.tables.Regions(), ", "))
	}
	return r, nil
}

// Regions lists every supported region with its stored asset counts.
func (s *Service) Regions(ctx context.Context) ([]RegionInfo, error) {
	names := s.tables.Regions()
	out := make([]RegionInfo, len(names))
	idx := make(map[string]int, len(names))
	for i, n := range names {
		out[i] = RegionInfo{Name: n}
		idx[n] = i
	}
	rc, ok := s.source.(RegionCounter)
	if !ok {
		return out, nil
	}
	counts, err := rc.Regions(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		if i, ok := idx[c.Region]; ok {
			out[i].Bridges = c.Bridges
			out[i].Roads = c.Roads
		}
	}
	return out, nil
}

func validateBudget(budget float64) error {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return eris.Wrapf(ErrInvalidBudget, "%v is not a finite amount", budget)
	}
	if budget < 0 {
		return eris.Wrapf(ErrInvalidBudget, "%v must not be negative", budget)
	}
	return nil
}

// candidates loads, scores, prices and ranks the region's assets.
func (s *Service) candidates(ctx context.Context, region string) ([]rank.Candidate, error) {
	records, err := s.source.Assets(ctx, region)
	if err != nil {
		return nil, err
	}
	cands, err := rank.Build(records, s.scorer, s.calc)
	if err != nil {
		return nil, eris.Wrapf(err, "optimizer: build candidates for %s", region)
	}
	return rank.Rank(cands), nil
}

func (s *Service) allocate(ctx context.Context, req OptimizeRequest) (report.Optimization, error) {
	region, err := s.ResolveRegion(req.Region)
	if err != nil {
		return report.Optimization{}, err
	}
	if err := validateBudget(req.Budget); err != nil {
		return report.Optimization{}, err
	}
	ranked, err := s.candidates(ctx, region)
	if err != nil {
		return report.Optimization{}, err
	}
	res := allocate.Allocate(ranked, req.Budget, req.Options)

	zap.L().Info("optimizer: allocation complete",
		zap.String("region", region),
		zap.Float64("budget", req.Budget),
		zap.Int("pool", res.PoolSize),
		zap.Int("selected", len(res.Selected)),
		zap.Int("unfunded_critical", len(res.UnfundedCritical)),
	)
	return s.format.Optimization(region, res), nil
}

// Optimize selects repairs for the region within budget.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (report.Optimization, error) {
	return s.allocate(ctx, req)
}

// Compare measures the RCR selection against the oldest-first baseline.
func (s *Service) Compare(ctx context.Context, region string, budget float64) (report.Comparison, error) {
	canonical, err := s.ResolveRegion(region)
	if err != nil {
		return report.Comparison{}, err
	}
	if err := validateBudget(budget); err != nil {
		return report.Comparison{}, err
	}
	ranked, err := s.candidates(ctx, canonical)
	if err != nil {
		return report.Comparison{}, err
	}
	res := compare.Compare(ranked, budget, s.year)

	zap.L().Info("optimizer: comparison complete",
		zap.String("region", canonical),
		zap.Float64("budget", budget),
		zap.Float64("improvement_pct", res.ImprovementPct),
	)
	return s.format.Comparison(res), nil
}

// ListHighRisk returns every HIGH or CRITICAL candidate of the class, in
// rank order, ignoring budget.
func (s *Service) ListHighRisk(ctx context.Context, region string, class Class) (report.HighRisk, error) {
	canonical, err := s.ResolveRegion(region)
	if err != nil {
		return report.HighRisk{}, err
	}
	if class == "" {
		class = ClassAll
	}
	if _, err := ParseClass(string(class)); err != nil {
		return report.HighRisk{}, err
	}
	ranked, err := s.candidates(ctx, canonical)
	if err != nil {
		return report.HighRisk{}, err
	}

	var out []rank.Candidate
	for _, c := range ranked {
		if !c.IsHighRisk() {
			continue
		}
		switch {
		case class == ClassBridges && c.Kind() != asset.KindBridge,
			class == ClassRoads && c.Kind() != asset.KindRoad:
			continue
		}
		out = append(out, c)
	}
	return s.format.HighRisk(canonical, string(class), out), nil
}

// Export renders the Optimize result for the request with default risk
// filtering.
func (s *Service) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	opts := allocate.DefaultOptions()
	opts.IncludeRoads = req.IncludeRoads
	opt, err := s.allocate(ctx, OptimizeRequest{Region: req.Region, Budget: req.Budget, Options: opts})
	if err != nil {
		return nil, err
	}
	if format == FormatCSV {
		return report.CSV(opt)
	}
	return report.JSON(opt)
}
