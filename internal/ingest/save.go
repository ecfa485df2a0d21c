package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/store"
)

// Saver persists one region snapshot. store.Store satisfies it.
type Saver interface {
	ReplaceRegion(ctx context.Context, region string, kind asset.Kind, source string, records []asset.Record) (*store.Load, error)
}

// Merge combines batches of the same asset class so that several sources
// loaded together land in one snapshot per (region, kind) instead of
// overwriting each other. Output order follows the first batch of each kind.
// A record whose id was already accepted from an earlier source is dropped
// and returned as a field error.
func Merge(batches []*Batch) ([]*Batch, []*asset.FieldError) {
	var (
		out     []*Batch
		byKind  = make(map[asset.Kind]*Batch)
		sources = make(map[asset.Kind][]string)
		origin  = make(map[asset.Kind]map[string]string)
		dups    []*asset.FieldError
	)
	for _, b := range batches {
		if b == nil {
			continue
		}
		m, ok := byKind[b.Kind]
		if !ok {
			m = &Batch{Kind: b.Kind, Records: []asset.Record{}, rows: make(map[string]int)}
			byKind[b.Kind] = m
			origin[b.Kind] = make(map[string]string)
			out = append(out, m)
		}
		sources[b.Kind] = append(sources[b.Kind], b.Source)
		m.Rejected = append(m.Rejected, b.Rejected...)
		m.Ignored = append(m.Ignored, b.Ignored...)

		for _, r := range b.Records {
			id := r.ID()
			if src, dup := origin[b.Kind][id]; dup {
				fe := fieldErr(b.rows[id], fID,
					"duplicate id %q in %s (first seen in %s row %d)", id, b.Source, src, m.rows[id])
				m.Rejected = append(m.Rejected, fe)
				dups = append(dups, fe)
				continue
			}
			origin[b.Kind][id] = b.Source
			m.rows[id] = b.rows[id]
			m.Records = append(m.Records, r)
		}
	}
	for _, m := range out {
		m.Source = strings.Join(sources[m.Kind], ",")
	}
	return out, dups
}

// Save writes the batch one region at a time. Each region present in the
// batch has its stored snapshot for the batch's kind replaced; regions absent
// from the batch are untouched.
func Save(ctx context.Context, s Saver, b *Batch) ([]*store.Load, error) {
	if len(b.Records) == 0 {
		zap.L().Warn("ingest: nothing to save", zap.String("source", b.Source))
		return nil, nil
	}
	byRegion := make(map[string][]asset.Record)
	for _, r := range b.Records {
		byRegion[r.Region()] = append(byRegion[r.Region()], r)
	}

	var loads []*store.Load
	for _, region := range b.Regions() {
		l, err := s.ReplaceRegion(ctx, region, b.Kind, b.Source, byRegion[region])
		if err != nil {
			return loads, eris.Wrapf(err, "ingest: save %s %s", region, b.Kind)
		}
		loads = append(loads, l)
	}
	return loads, nil
}
