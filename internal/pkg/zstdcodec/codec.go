// Package zstdcodec compresses grid blobs for storage and transfer.
package zstdcodec

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// magic is the zstd frame header.
var magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var encPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		return enc
	},
}

var decPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Compress returns data as a single zstd frame.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	enc := encPool.Get().(*zstd.Encoder)
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		encPool.Put(enc)
		return nil, err
	}
	if err := enc.Close(); err != nil {
		encPool.Put(enc)
		return nil, err
	}
	encPool.Put(enc)

	return buf.Bytes(), nil
}

// Decompress inflates a zstd payload, reading at most limit output bytes.
func Decompress(data []byte, limit int64) ([]byte, error) {
	dec := decPool.Get().(*zstd.Decoder)
	defer decPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(dec, limit))
}

// NewReader streams a zstd-compressed source. The caller must Close it.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
