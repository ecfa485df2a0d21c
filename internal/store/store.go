// Package store persists ingested asset snapshots. Each load replaces every
// record of one (region, kind) pair atomically, so readers see either the
// previous snapshot or the new one.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prism/internal/asset"
)

// Load describes one completed snapshot replacement.
type Load struct {
	ID       string     `json:"id"`
	Region   string     `json:"region"`
	Kind     asset.Kind `json:"kind"`
	Source   string     `json:"source"`
	Records  int        `json:"records"`
	LoadedAt time.Time  `json:"loaded_at"`
}

// RegionSummary counts the stored assets of one region.
type RegionSummary struct {
	Region  string `json:"region"`
	Bridges int    `json:"bridges"`
	Roads   int    `json:"roads"`
}

// Store defines the persistence interface for asset snapshots.
type Store interface {
	// ReplaceRegion swaps the stored records of region and kind for records.
	// Every record must belong to that region and kind.
	ReplaceRegion(ctx context.Context, region string, kind asset.Kind, source string, records []asset.Record) (*Load, error)
	// ListAssets returns the region's records ordered by kind then id.
	ListAssets(ctx context.Context, region string) ([]asset.Record, error)
	ListLoads(ctx context.Context, region string, limit int) ([]Load, error)
	Regions(ctx context.Context) ([]RegionSummary, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// checkBatch rejects records that do not belong to the snapshot being
// replaced.
func checkBatch(region string, kind asset.Kind, records []asset.Record) error {
	if region == "" {
		return eris.New("store: region is required")
	}
	if kind != asset.KindBridge && kind != asset.KindRoad {
		return eris.Errorf("store: unknown kind %q", kind)
	}
	for _, r := range records {
		if r.Kind != kind {
			return eris.Errorf("store: record %s is a %s, snapshot holds %s", r.ID(), r.Kind, kind)
		}
		if r.Region() != region {
			return eris.Errorf("store: record %s belongs to %s, snapshot holds %s", r.ID(), r.Region(), region)
		}
	}
	return nil
}

func encodeRecord(r asset.Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal record %s", r.ID())
	}
	return b, nil
}

func decodeRecord(id string, data []byte) (asset.Record, error) {
	var r asset.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return asset.Record{}, eris.Wrapf(err, "store: unmarshal record %s", id)
	}
	if err := r.Validate(); err != nil {
		return asset.Record{}, eris.Wrapf(err, "store: stored record %s", id)
	}
	return r, nil
}

func summarize(counts map[string]*RegionSummary, order *[]string, region string, kind asset.Kind, n int) {
	s, ok := counts[region]
	if !ok {
		s = &RegionSummary{Region: region}
		counts[region] = s
		*order = append(*order, region)
	}
	switch kind {
	case asset.KindBridge:
		s.Bridges += n
	case asset.KindRoad:
		s.Roads += n
	}
}

func collectSummaries(counts map[string]*RegionSummary, order []string) []RegionSummary {
	out := make([]RegionSummary, 0, len(order))
	for _, r := range order {
		out = append(out, *counts[r])
	}
	return out
}
