// Package geoid computes EGM96 geoid undulations from the NGA 15-arc-minute
// offset grid.
//
// The grid file is 721 rows of 1440 big-endian int16 values in centimetres.
// Row 0 is 90°N, row 720 is 90°S. Columns start at the prime meridian and run
// east in 15' steps, ending at 359.75°E; the 360° column is not stored.
package geoid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"
)

const (
	Rows        = 721
	Cols        = 1440
	Interval    = 15.0 / 60.0 // degrees, both axes
	SampleCount = Rows * Cols
	FileSize    = SampleCount * 2 // 2,076,480 bytes
)

var (
	ErrTruncated       = errors.New("grid truncated")
	ErrSizeMismatch    = errors.New("grid size mismatch")
	ErrUnreadable      = errors.New("grid source unreadable")
	ErrIndexOutOfRange = errors.New("grid index out of range")
)

// LoadError reports why a grid could not be constructed.
type LoadError struct {
	Source string
	Size   int64 // bytes read, -1 if unknown
	Err    error
}

func (e *LoadError) Error() string {
	if e.Size >= 0 {
		return fmt.Sprintf("load geoid grid %s (%d bytes, want %d): %v", e.Source, e.Size, FileSize, e.Err)
	}
	return fmt.Sprintf("load geoid grid %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Stats summarises a decoded grid.
type Stats struct {
	MinCM       int32
	MaxCM       int32
	Fingerprint uint64 // xxhash64 of the raw file bytes
}

// Grid is a decoded, read-only EGM96 offset grid.
type Grid struct {
	samples []int16
	stats   Stats
}

// Decode builds a Grid from the complete grid file contents.
func Decode(b []byte) (*Grid, error) {
	return decode("bytes", b)
}

func decode(source string, b []byte) (*Grid, error) {
	switch {
	case len(b) < FileSize:
		return nil, &LoadError{Source: source, Size: int64(len(b)), Err: ErrTruncated}
	case len(b) > FileSize:
		return nil, &LoadError{Source: source, Size: int64(len(b)), Err: ErrSizeMismatch}
	}

	samples := make([]int16, SampleCount)
	minCM, maxCM := int32(0), int32(0)
	for k := range samples {
		v := int16(binary.BigEndian.Uint16(b[2*k:]))
		samples[k] = v
		if k == 0 || int32(v) < minCM {
			minCM = int32(v)
		}
		if k == 0 || int32(v) > maxCM {
			maxCM = int32(v)
		}
	}

	return &Grid{
		samples: samples,
		stats: Stats{
			MinCM:       minCM,
			MaxCM:       maxCM,
			Fingerprint: xxhash.Sum64(b),
		},
	}, nil
}

// Read consumes r to EOF and decodes the grid.
func Read(r io.Reader) (*Grid, error) {
	return ReadNamed("reader", r)
}

// ReadNamed is Read with a source name recorded in any LoadError.
func ReadNamed(source string, r io.Reader) (*Grid, error) {
	// One byte past FileSize is enough to tell an oversized source apart.
	b, err := io.ReadAll(io.LimitReader(r, FileSize+1))
	if err != nil {
		return nil, &LoadError{Source: source, Size: int64(len(b)), Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	return decode(source, b)
}

// Open loads the grid from a file on disk.
func Open(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Size: -1, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	defer f.Close()

	return ReadNamed(path, f)
}

// OpenFS loads the grid from a bundled filesystem such as an embed.FS.
func OpenFS(fsys fs.FS, name string) (*Grid, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, &LoadError{Source: name, Size: -1, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	defer f.Close()

	return ReadNamed(name, f)
}

// At returns the raw centimetre offset stored at (row, col).
func (g *Grid) At(row, col int) (int32, error) {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return 0, ErrIndexOutOfRange
	}
	return int32(g.samples[row*Cols+col]), nil
}

// Stats returns the min/max sample and fingerprint computed at load time.
func (g *Grid) Stats() Stats {
	return g.stats
}
