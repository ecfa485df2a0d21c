// Package fetcher opens asset source files, local or remote, and streams their
// rows out of CSV, JSON and XLSX encodings.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote source files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Row is one record of a tabular source. Num is the 1-based position of the
// record in the file, counting the header.
type Row struct {
	Num   int
	Cells []string
}

// IsRemote reports whether src names an http(s) URL rather than a local path.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Open returns a reader for src. URLs go through f; anything else is opened
// from the local filesystem. A nil f rejects URLs.
func Open(ctx context.Context, f Fetcher, src string) (io.ReadCloser, error) {
	if IsRemote(src) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no downloader configured for %s", src)
		}
		return f.Download(ctx, src)
	}
	file, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return file, nil
}
