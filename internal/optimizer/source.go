package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/resilience"
	"github.com/sells-group/prism/internal/store"
)

// Source supplies the normalized records of one region.
type Source interface {
	Assets(ctx context.Context, region string) ([]asset.Record, error)
}

// RegionCounter is implemented by sources that can report stored totals.
type RegionCounter interface {
	Regions(ctx context.Context) ([]store.RegionSummary, error)
}

// AssetLister is the read side of store.Store.
type AssetLister interface {
	ListAssets(ctx context.Context, region string) ([]asset.Record, error)
	Regions(ctx context.Context) ([]store.RegionSummary, error)
}

type snapshot struct {
	records  []asset.Record
	loadedAt time.Time
}

// StoreSource reads region snapshots from a store and keeps them in memory
// for a TTL. Returned slices are shared between callers and must not be
// modified.
type StoreSource struct {
	lister AssetLister
	ttl    time.Duration
	retry  resilience.RetryConfig
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]snapshot
}

// NewStoreSource creates a StoreSource. A zero ttl disables caching.
func NewStoreSource(l AssetLister, ttl time.Duration, retry resilience.RetryConfig) *StoreSource {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("optimizer", "list_assets")
	}
	return &StoreSource{
		lister: l,
		ttl:    ttl,
		retry:  retry,
		now:    time.Now,
		cache:  make(map[string]snapshot),
	}
}

// Assets returns the cached snapshot of region, reloading it once the TTL
// has passed. Transient store failures are retried.
func (s *StoreSource) Assets(ctx context.Context, region string) ([]asset.Record, error) {
	s.mu.Lock()
	snap, ok := s.cache[region]
	s.mu.Unlock()
	if ok && s.now().Sub(snap.loadedAt) < s.ttl {
		return snap.records, nil
	}

	records, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]asset.Record, error) {
		return s.lister.ListAssets(ctx, region)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "optimizer: load assets for %s", region)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[region] = snapshot{records: records, loadedAt: s.now()}
		s.mu.Unlock()
	}
	zap.L().Debug("optimizer: snapshot loaded",
		zap.String("region", region),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Invalidate drops cached snapshots. With no regions it drops all of them.
func (s *StoreSource) Invalidate(regions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(regions) == 0 {
		s.cache = make(map[string]snapshot)
		return
	}
	for _, r := range regions {
		delete(s.cache, r)
	}
}

// Regions reports stored totals per region.
func (s *StoreSource) Regions(ctx context.Context) ([]store.RegionSummary, error) {
	out, err := resilience.DoVal(ctx, s.retry, s.lister.Regions)
	return out, eris.Wrap(err, "optimizer: region counts")
}

// StaticSource serves a fixed set of records, grouped by region.
type StaticSource map[string][]asset.Record

// NewStaticSource groups records by region.
func NewStaticSource(records []asset.Record) StaticSource {
	s := make(StaticSource)
	for _, r := range records {
		s[r.Region()] = append(s[r.Region()], r)
	}
	return s
}

func (s StaticSource) Assets(_ context.Context, region string) ([]asset.Record, error) {
	return s[region], nil
}
