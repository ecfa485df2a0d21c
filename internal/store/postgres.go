package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var assetColumns = []string{"region", "kind", "id", "load_id", "data"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS asset_loads (
	id           TEXT PRIMARY KEY,
	region       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL,
	loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assets (
	region  TEXT NOT NULL,
	kind    TEXT NOT NULL,
	id      TEXT NOT NULL,
	load_id TEXT NOT NULL REFERENCES asset_loads(id),
	data    JSONB NOT NULL,
	PRIMARY KEY (region, kind, id)
);

CREATE INDEX IF NOT EXISTS idx_asset_loads_region ON asset_loads(region, loaded_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReplaceRegion deletes the old snapshot and COPYs the new one inside a
// single transaction.
func (s *PostgresStore) ReplaceRegion(ctx context.Context, region string, kind asset.Kind, source string, records []asset.Record) (*Load, error) {
	if err := checkBatch(region, kind, records); err != nil {
		return nil, err
	}
	load := &Load{
		ID:       uuid.New().String(),
		Region:   region,
		Kind:     kind,
		Source:   source,
		Records:  len(records),
		LoadedAt: time.Now().UTC(),
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		data, err := encodeRecord(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{region, string(kind), r.ID(), load.ID, data})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO asset_loads (id, region, kind, source, record_count, loaded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		load.ID, load.Region, string(load.Kind), load.Source, load.Records, load.LoadedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert load")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM assets WHERE region = $1 AND kind = $2`, region, string(kind)); err != nil {
		return nil, eris.Wrap(err, "postgres: clear snapshot")
	}
	if _, err := db.CopyFrom(ctx, tx, "assets", assetColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: copy assets")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit replace")
	}

	zap.L().Info("store: snapshot replaced",
		zap.String("driver", "postgres"),
		zap.String("region", region),
		zap.String("kind", string(kind)),
		zap.Int("records", len(records)),
		zap.String("load_id", load.ID),
	)
	return load, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, region string) ([]asset.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, data FROM assets WHERE region = $1 ORDER BY kind, id`, region)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	out := []asset.Record{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		r, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assets")
}

func (s *PostgresStore) ListLoads(ctx context.Context, region string, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, region, kind, source, record_count, loaded_at FROM asset_loads
		 WHERE ($1 = '' OR region = $1) ORDER BY loaded_at DESC, id LIMIT $2`, region, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list loads")
	}
	defer rows.Close()

	var out []Load
	for rows.Next() {
		var (
			l    Load
			kind string
		)
		if err := rows.Scan(&l.ID, &l.Region, &kind, &l.Source, &l.Records, &l.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan load")
		}
		l.Kind = asset.Kind(kind)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate loads")
}

func (s *PostgresStore) Regions(ctx context.Context) ([]RegionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region, kind, COUNT(*) FROM assets GROUP BY region, kind ORDER BY region, kind`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: region counts")
	}
	defer rows.Close()

	counts := make(map[string]*RegionSummary)
	var order []string
	for rows.Next() {
		var (
			region, kind string
			n            int64
		)
		if err := rows.Scan(&region, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region count")
		}
		summarize(counts, &order, region, asset.Kind(kind), int(n))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate region counts")
	}
	return collectSummaries(counts, order), nil
}
