package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// maxZIPEntry caps the decompressed size of an archived source file.
const maxZIPEntry = 512 << 20

// OpenZIPEntry reads a ZIP archive from r and returns the name and contents of
// its single data file. Directories and macOS metadata entries are ignored;
// archives holding zero or several data files are rejected.
func OpenZIPEntry(r io.Reader) (string, io.ReadCloser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: read archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}

	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		files = append(files, f)
	}
	if len(files) != 1 {
		return "", nil, eris.Errorf("zip: expected exactly 1 data file, got %d", len(files))
	}

	f := files[0]
	if f.UncompressedSize64 > maxZIPEntry {
		return "", nil, eris.Errorf("zip: entry %q exceeds %d bytes", f.Name, maxZIPEntry)
	}
	rc, err := f.Open()
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open entry")
	}
	return path.Base(f.Name), rc, nil
}
