package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prism/internal/asset"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS asset_loads (
	id           TEXT PRIMARY KEY,
	region       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL,
	loaded_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
	region  TEXT NOT NULL,
	kind    TEXT NOT NULL,
	id      TEXT NOT NULL,
	load_id TEXT NOT NULL REFERENCES asset_loads(id),
	data    TEXT NOT NULL,
	PRIMARY KEY (region, kind, id)
);

CREATE INDEX IF NOT EXISTS idx_asset_loads_region ON asset_loads(region, loaded_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceRegion(ctx context.Context, region string, kind asset.Kind, source string, records []asset.Record) (*Load, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO asset_loads (id, region, kind, source, record_count, loaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		load.ID, load.Region, string(load.Kind), load.Source, load.Records, load.LoadedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert load")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE region = ? AND kind = ?`, region, string(kind)); err != nil {
		return nil, eris.Wrap(err, "sqlite: clear snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO assets (region, kind, id, load_id, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck
	for _, r := range records {
		data, err := encodeRecord(r)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, region, string(kind), r.ID(), load.ID, string(data)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert asset %s", r.ID())
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit replace")
	}
	zap.L().Info("store: snapshot replaced",
		zap.String("driver", "sqlite"),
		zap.String("region", region),
		zap.String("kind", string(kind)),
		zap.Int("records", len(records)),
		zap.String("load_id", load.ID),
	)
	return load, nil
}

func (s *SQLiteStore) ListAssets(ctx context.Context, region string) ([]asset.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM assets WHERE region = ? ORDER BY kind, id`, region)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close() //nolint:errcheck

	out := []asset.Record{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		r, err := decodeRecord(id, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assets")
}

func (s *SQLiteStore) ListLoads(ctx context.Context, region string, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, region, kind, source, record_count, loaded_at FROM asset_loads`
	args := []any{}
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY loaded_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list loads")
	}
	defer rows.Close() //nolint:errcheck

	var out []Load
	for rows.Next() {
		var (
			l    Load
			kind string
		)
		if err := rows.Scan(&l.ID, &l.Region, &kind, &l.Source, &l.Records, &l.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan load")
		}
		l.Kind = asset.Kind(kind)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate loads")
}

func (s *SQLiteStore) Regions(ctx context.Context) ([]RegionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region, kind, COUNT(*) FROM assets GROUP BY region, kind ORDER BY region, kind`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: region counts")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]*RegionSummary)
	var order []string
	for rows.Next() {
		var (
			region, kind string
			n            int
		)
		if err := rows.Scan(&region, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region count")
		}
		summarize(counts, &order, region, asset.Kind(kind), n)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate region counts")
	}
	return collectSummaries(counts, order), nil
}
