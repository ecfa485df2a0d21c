// Package ingest reads bridge and road-section source files (CSV, JSON, XLSX,
// optionally zipped, local or remote) and normalizes them into asset records.
// Source column spellings are resolved here and nowhere else.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/fetcher"
)

// Format is a source file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for sources whose encoding is not known.
var ErrUnsupportedFormat = eris.New("ingest: unsupported format")

// DetectFormat infers the encoding from a file name or URL path.
func DetectFormat(name string) (Format, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 && fetcher.IsRemote(name) {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Wrapf(ErrUnsupportedFormat, "source %s", name)
}

// Options controls how a source is interpreted.
type Options struct {
	// Kind forces the asset class. Empty detects it from the columns present.
	Kind asset.Kind
	// Region fills rows whose region column is absent or empty.
	Region string
	// Sheet selects an XLSX worksheet by name; empty reads the first sheet.
	Sheet string
	// ResolveRegion canonicalizes region names. Rows it rejects are reported
	// as field errors. Nil keeps region values as given.
	ResolveRegion func(string) (string, bool)
	// Fetcher downloads http(s) sources. Nil rejects URLs.
	Fetcher fetcher.Fetcher
}

// Batch is the outcome of reading one source. Rejected rows do not stop the
// batch; structural problems (unreadable file, missing required column) do.
type Batch struct {
	Source   string
	Kind     asset.Kind
	Records  []asset.Record
	Rejected []*asset.FieldError
	// Ignored lists source columns that map onto no known field.
	Ignored []string

	// rows maps each accepted record id to its source row.
	rows map[string]int
}

// Regions returns the distinct regions present in the batch, in first-seen order.
func (b *Batch) Regions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range b.Records {
		if !seen[r.Region()] {
			seen[r.Region()] = true
			out = append(out, r.Region())
		}
	}
	return out
}

// Load opens src and decodes it. Zip archives are unwrapped to their single
// data file first.
func Load(ctx context.Context, src string, opts Options) (*Batch, error) {
	rc, err := fetcher.Open(ctx, opts.Fetcher, src)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open source")
	}
	defer rc.Close() //nolint:errcheck

	name := src
	var r io.Reader = rc
	if strings.HasSuffix(strings.ToLower(src), ".zip") {
		inner, entry, err := fetcher.OpenZIPEntry(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s", src)
		}
		defer entry.Close() //nolint:errcheck
		name, r = inner, entry
	}

	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	b, err := Decode(ctx, r, format, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s", src)
	}
	b.Source = src

	zap.L().Info("ingest: source decoded",
		zap.String("source", src),
		zap.String("kind", string(b.Kind)),
		zap.Int("records", len(b.Records)),
		zap.Int("rejected", len(b.Rejected)),
		zap.Strings("ignored_columns", b.Ignored),
	)
	return b, nil
}

// Decode reads r in the given format.
func Decode(ctx context.Context, r io.Reader, format Format, opts Options) (*Batch, error) {
	switch format {
	case FormatCSV:
		rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
		return decodeTable(rows, errs, opts)
	case FormatXLSX:
		rows, errs := fetcher.StreamXLSX(ctx, r, fetcher.XLSXOptions{SheetName: opts.Sheet})
		return decodeTable(rows, errs, opts)
	case FormatJSON:
		elems, errs := fetcher.DecodeJSONArray[map[string]any](ctx, r)
		return decodeJSON(elems, errs, opts)
	}
	return nil, eris.Wrapf(ErrUnsupportedFormat, "format %q", format)
}

// collector accumulates parsed rows and rejects duplicate identifiers.
type collector struct {
	batch  *Batch
	parser *rowParser
}

func newCollector(kind asset.Kind, ignored []string, opts Options) *collector {
	return &collector{
		batch:  &Batch{Kind: kind, Records: []asset.Record{}, Ignored: ignored},
		parser: &rowParser{kind: kind, defaultRegion: opts.Region, resolve: opts.ResolveRegion},
	}
}

func (c *collector) seen() map[string]int {
	if c.batch.rows == nil {
		c.batch.rows = make(map[string]int)
	}
	return c.batch.rows
}

func (c *collector) add(row int, values map[string]string) {
	rec, fe := c.parser.parse(row, values)
	if fe != nil {
		c.batch.Rejected = append(c.batch.Rejected, fe)
		return
	}
	if first, dup := c.seen()[rec.ID()]; dup {
		c.batch.Rejected = append(c.batch.Rejected,
			fieldErr(row, fID, "duplicate id %q (first seen at row %d)", rec.ID(), first))
		return
	}
	c.seen()[rec.ID()] = row
	c.batch.Records = append(c.batch.Records, rec)
}

func kindOf(opts Options, has func(string) bool) asset.Kind {
	if opts.Kind != "" {
		return opts.Kind
	}
	return detectKind(has)
}

// checkColumns rejects tabular sources whose header lacks a column every row
// needs.
func checkColumns(cm columnMap, kind asset.Kind, opts Options) error {
	var absent []string
	if !cm.has(fCondition) {
		absent = append(absent, fCondition)
	}
	if !cm.has(fRegion) && opts.Region == "" {
		absent = append(absent, fRegion)
	}
	if kind == asset.KindBridge && !cm.has(fID) {
		absent = append(absent, fID)
	}
	if kind == asset.KindRoad && !cm.has(fHighway) {
		absent = append(absent, fHighway)
	}
	if len(absent) > 0 {
		return eris.Errorf("ingest: %s source missing required column(s): %s", kind, strings.Join(absent, ", "))
	}
	return nil
}

func decodeTable(rows <-chan fetcher.Row, errs <-chan error, opts Options) (*Batch, error) {
	var (
		c       *collector
		cm      columnMap
		initErr error
	)
	for row := range rows {
		if initErr != nil {
			continue // drain so the producer can exit
		}
		if c == nil {
			cm = mapColumns(row.Cells)
			kind := kindOf(opts, cm.has)
			if initErr = checkColumns(cm, kind, opts); initErr == nil {
				c = newCollector(kind, cm.ignored, opts)
			}
			continue
		}
		c.add(row.Num, cm.values(row.Cells))
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	if initErr != nil {
		return nil, initErr
	}
	if c == nil {
		return &Batch{Kind: opts.Kind, Records: []asset.Record{}}, nil
	}
	return c.batch, nil
}

// decodeJSON reads an array of objects. Keys are mapped per element, and the
// asset class is taken from the first element when not forced.
func decodeJSON(elems <-chan fetcher.Element[map[string]any], errs <-chan error, opts Options) (*Batch, error) {
	var c *collector
	ignored := make(map[string]bool)
	for e := range elems {
		values, unknown := jsonValues(e.Value)
		for _, k := range unknown {
			ignored[k] = true
		}
		if c == nil {
			c = newCollector(kindOf(opts, func(f string) bool {
				_, ok := values[f]
				return ok
			}), nil, opts)
		}
		c.add(e.Num, values)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	if c == nil {
		return &Batch{Kind: opts.Kind, Records: []asset.Record{}}, nil
	}
	for k := range ignored {
		c.batch.Ignored = append(c.batch.Ignored, k)
	}
	slices.Sort(c.batch.Ignored)
	return c.batch, nil
}

// jsonValues flattens one JSON object onto canonical fields, rendering
// scalars as the strings a CSV cell would hold.
func jsonValues(obj map[string]any) (map[string]string, []string) {
	out := make(map[string]string, len(obj))
	var ignored []string
	for k, v := range obj {
		f, ok := canonicalField(k)
		if !ok {
			ignored = append(ignored, k)
			continue
		}
		if _, dup := out[f]; dup {
			continue
		}
		switch val := v.(type) {
		case nil:
			out[f] = ""
		case string:
			out[f] = strings.TrimSpace(val)
		case float64:
			out[f] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[f] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			out[f] = string(b)
		}
	}
	return out, ignored
}

// LoadFiles loads every source concurrently, at most maxConcurrent at a time,
// and returns the batches in input order. The first structural failure
// cancels the remaining loads.
func LoadFiles(ctx context.Context, srcs []string, opts Options, maxConcurrent int) ([]*Batch, error) {
	batches := make([]*Batch, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	for i, src := range srcs {
		g.Go(func() error {
			b, err := Load(gctx, src, opts)
			if err != nil {
				return err
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}
