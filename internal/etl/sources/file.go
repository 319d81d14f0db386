package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"textingest/internal/etl"
)

// ── File Source ─────────────────────────────────────────────
// Streams lines from a local file. Plain paths and file:// URLs.

var errIsDir = errors.New("is a directory")

type fileSource struct{}

func init() { etl.RegisterSource(&fileSource{}) }

func (s *fileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{Scheme: "file", Label: "Local file"}
}

func (s *fileSource) Open(ctx context.Context, location string) (etl.LineSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Clean(strings.TrimPrefix(location, "file://"))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &os.PathError{Op: "open", Path: path, Err: errIsDir}
	}
	return etl.NewLineReader(path, f), nil
}
