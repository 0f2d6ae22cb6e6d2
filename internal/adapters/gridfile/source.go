// Package gridfile loads the geoid grid from the local filesystem.
package gridfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/samirrijal/egm96/internal/pkg/geoid"
	"github.com/samirrijal/egm96/internal/pkg/zstdcodec"
)

// Source implements ports.GridSource for a grid file on disk.
// Paths ending in ".zst" are decompressed while reading.
type Source struct {
	path string
}

// New creates a file-backed grid source.
func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Describe() string { return "file:" + s.path }

// LoadGrid reads and decodes the grid file.
func (s *Source) LoadGrid(ctx context.Context) (*geoid.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(s.path, ".zst") {
		return geoid.Open(s.path)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, &geoid.LoadError{Source: s.path, Size: -1, Err: fmt.Errorf("%w: %v", geoid.ErrUnreadable, err)}
	}
	defer f.Close()

	zr, err := zstdcodec.NewReader(f)
	if err != nil {
		return nil, &geoid.LoadError{Source: s.path, Size: -1, Err: fmt.Errorf("%w: %v", geoid.ErrUnreadable, err)}
	}
	defer zr.Close()

	return geoid.ReadNamed(s.path, zr)
}
