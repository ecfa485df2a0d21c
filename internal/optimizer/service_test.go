package optimizer

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/cost"
	"github.com/sells-group/prism/internal/report"
)

const testYear = 2025

func ptr[T any](v T) *T { return &v }

func fixture() []asset.Record {
	return []asset.Record{
		asset.FromBridge(asset.Bridge{ID: "ON-1", Name: "Don Valley", Region: "Ontario", Condition: asset.ConditionCritical, YearBuilt: ptr(1960), Highway: "Highway 401"}),
		asset.FromBridge(asset.Bridge{ID: "ON-2", Name: "Humber", Region: "Ontario", Condition: asset.ConditionPoor, YearBuilt: ptr(2010)}),
		asset.FromBridge(asset.Bridge{ID: "ON-3", Name: "Credit", Region: "Ontario", Condition: asset.ConditionGood}),
		asset.FromRoad(asset.Road{ID: "RD-1", Highway: "Highway 11", Region: "Ontario", Condition: asset.ConditionPoor}),
		asset.FromRoad(asset.Road{ID: "RD-2", Highway: "Highway 17", Region: "Ontario", Condition: asset.ConditionCritical}),
		asset.FromBridge(asset.Bridge{ID: "QC-1", Name: "Champlain", Region: "Quebec", Condition: asset.ConditionPoor}),
	}
}

func newTestService() *Service {
	return NewService(NewStaticSource(fixture()), cost.DefaultTables(), testYear)
}

type failingSource struct{ err error }

func (f failingSource) Assets(context.Context, string) ([]asset.Record, error) { return nil, f.err }

func TestOptimize_FundsEverythingWithLargeBudget(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Optimize(context.Background(), OptimizeRequest{
		Region:  "Ontario",
		Budget:  1e12,
		Options: allocate.DefaultOptions(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Ontario", got.Region)
	assert.Equal(t, report.Algorithm, got.Algorithm)
	assert.Equal(t, 2, got.Summary.BridgesSelected)
	assert.Equal(t, 2, got.Summary.RoadsSelected)
	assert.Equal(t, 4, got.Summary.TotalSelected)
	assert.Empty(t, got.Warnings)

	var ids []string
	for _, it := range got.SelectedBridges {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{"ON-1", "ON-2"}, ids)
}

func TestOptimize_ExcludeRoads(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Optimize(context.Background(), OptimizeRequest{Region: "Ontario", Budget: 1e12})
	require.NoError(t, err)
	assert.Empty(t, got.SelectedRoads)
	assert.Equal(t, 2, got.Summary.BridgesSelected)
}

func TestOptimize_ZeroBudgetWarnsAboutCriticals(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Optimize(context.Background(), OptimizeRequest{
		Region:  "Ontario",
		Budget:  0,
		Options: allocate.DefaultOptions(),
	})
	require.NoError(t, err)
	assert.Empty(t, got.SelectedBridges)
	assert.Empty(t, got.SelectedRoads)
	assert.Equal(t, 1, got.Summary.CriticalBridgesUnfunded)
	assert.Equal(t, 1, got.Summary.CriticalRoadsUnfunded)
	assert.Len(t, got.Warnings, 2)
	assert.Equal(t, float64(0), got.Summary.TotalCost)
}

func TestOptimize_RegionAlias(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Optimize(context.Background(), OptimizeRequest{Region: "qc", Budget: 1e12})
	require.NoError(t, err)
	assert.Equal(t, "Quebec", got.Region)
	assert.Equal(t, 1, got.Summary.BridgesSelected)
}

func TestOptimize_EmptyRegion(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Optimize(context.Background(), OptimizeRequest{Region: "Manitoba", Budget: 5e6, Options: allocate.DefaultOptions()})
	require.NoError(t, err)
	assert.NotNil(t, got.SelectedBridges)
	assert.NotNil(t, got.SelectedRoads)
	assert.Zero(t, got.Summary.TotalSelected)
	assert.Empty(t, got.Warnings)
}

func TestOptimize_RequestErrors(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	tests := []struct {
		name   string
		region string
		budget float64
		want   error
	}{
		{"unknown region", "Atlantis", 1e6, ErrInvalidRegion},
		{"empty region", "", 1e6, ErrInvalidRegion},
		{"negative budget", "Ontario", -1, ErrInvalidBudget},
		{"nan budget", "Ontario", math.NaN(), ErrInvalidBudget},
		{"infinite budget", "Ontario", math.Inf(1), ErrInvalidBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Optimize(context.Background(), OptimizeRequest{Region: tt.region, Budget: tt.budget})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsRequestError(err))
		})
	}
}

func TestOptimize_SourceFailureIsNotRequestError(t *testing.T) {
	t.Parallel()
	svc := NewService(failingSource{err: errors.New("store offline")}, cost.DefaultTables(), testYear)

	_, err := svc.Optimize(context.Background(), OptimizeRequest{Region: "Ontario", Budget: 1})
	require.Error(t, err)
	assert.False(t, IsRequestError(err))
}

func TestOptimize_Idempotent(t *testing.T) {
	t.Parallel()
	svc := newTestService()
	req := OptimizeRequest{Region: "Ontario", Budget: 12_000_000, Options: allocate.DefaultOptions()}

	a, err := svc.Optimize(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Optimize(context.Background(), req)
	require.NoError(t, err)

	aj, err := report.JSON(a)
	require.NoError(t, err)
	bj, err := report.JSON(b)
	require.NoError(t, err)
	assert.Equal(t, aj, bj)
}

func TestCompare(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Compare(context.Background(), "Ontario", 1e12)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AIOptimized.BridgesRepaired)
	assert.Equal(t, 2, got.AIOptimized.RoadsRepaired)
	assert.Equal(t, got.AIOptimized.RiskReduction, got.Traditional.RiskReduction)
	assert.Equal(t, float64(0), got.Improvement.Percent)
	assert.NotEmpty(t, got.Improvement.Description)

	_, err = svc.Compare(context.Background(), "Ontario", -5)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestListHighRisk(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	tests := []struct {
		class     Class
		wantIDs   []string
		critical  int
		wantLenKm float64
	}{
		{ClassAll, []string{"ON-1", "ON-2", "RD-1", "RD-2"}, 2, 2},
		{"", []string{"ON-1", "ON-2", "RD-1", "RD-2"}, 2, 2},
		{ClassBridges, []string{"ON-1", "ON-2"}, 1, 0},
		{ClassRoads, []string{"RD-1", "RD-2"}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			t.Parallel()
			got, err := svc.ListHighRisk(context.Background(), "Ontario", tt.class)
			require.NoError(t, err)

			var ids []string
			for _, it := range got.Items {
				ids = append(ids, it.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), got.TotalCount)
			assert.Equal(t, tt.critical, got.CriticalCount)
			assert.Equal(t, tt.wantLenKm, got.TotalLengthKm)
		})
	}

	_, err := svc.ListHighRisk(context.Background(), "Ontario", "tunnels")
	assert.ErrorIs(t, err, ErrInvalidClass)
}

func TestListHighRisk_IncludesScoreSeventy(t *testing.T) {
	t.Parallel()

	// 100 - index decides both scores: 70.0 is HIGH, 69.9 is MEDIUM.
	svc := NewService(NewStaticSource([]asset.Record{
		asset.FromBridge(asset.Bridge{ID: "MB-70", Region: "Manitoba", Condition: asset.ConditionGood, ConditionIndex: ptr(30.0)}),
		asset.FromBridge(asset.Bridge{ID: "MB-69", Region: "Manitoba", Condition: asset.ConditionGood, ConditionIndex: ptr(30.1)}),
	}), cost.DefaultTables(), testYear)

	got, err := svc.ListHighRisk(context.Background(), "Manitoba", ClassAll)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "MB-70", got.Items[0].ID)
	assert.Equal(t, 70.0, got.Items[0].RiskScore)
	assert.Equal(t, 0, got.CriticalCount)
}

func TestExport(t *testing.T) {
	t.Parallel()
	svc := newTestService()
	ctx := context.Background()

	csvOut, err := svc.Export(ctx, ExportRequest{Region: "Ontario", Budget: 1e12, Format: FormatCSV, IncludeRoads: true})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, strings.Join(report.CSVHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,"))

	jsonOut, err := svc.Export(ctx, ExportRequest{Region: "Ontario", Budget: 1e12, IncludeRoads: true})
	require.NoError(t, err)
	opt, err := svc.Optimize(ctx, OptimizeRequest{Region: "Ontario", Budget: 1e12, Options: allocate.DefaultOptions()})
	require.NoError(t, err)
	want, err := report.JSON(opt)
	require.NoError(t, err)
	assert.Equal(t, want, jsonOut)

	_, err = svc.Export(ctx, ExportRequest{Region: "Ontario", Budget: 1, Format: "pdf"})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseFormatAndClass(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType())

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	c, err := ParseClass("Roads")
	require.NoError(t, err)
	assert.Equal(t, ClassRoads, c)

	_, err = ParseClass("culverts")
	assert.True(t, IsRequestError(err))
}

func TestRegions_StaticSource(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	got, err := svc.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(cost.DefaultTables().Regions()))
	for _, r := range got {
		assert.Zero(t, r.Bridges)
	}
}
