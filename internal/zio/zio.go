// Package zio wraps the zstd streaming compressor and decompressor used
// for dictionaries and segments.
package zio

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compressor is a streaming zstd compressor over an underlying writer.
type Compressor struct {
	enc *zstd.Encoder
	// uncompressed bytes accepted so far
	written int64
}

// NewCompressor opens a compressor at the given zstd level (1..22).
func NewCompressor(w io.Writer, level int) (*Compressor, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("opening zstd encoder: %w", err)
	}
	return &Compressor{enc: enc}, nil
}

func (c *Compressor) Write(p []byte) (int, error) {
	n, err := c.enc.Write(p)
	c.written += int64(n)
	return n, err
}

// Flush forces out everything written so far so a reader can decode it.
func (c *Compressor) Flush() error {
	return c.enc.Flush()
}

// BytesWritten returns the number of uncompressed bytes accepted.
func (c *Compressor) BytesWritten() int64 {
	return c.written
}

// Close ends the zstd stream. The underlying writer stays open.
func (c *Compressor) Close() error {
	return c.enc.Close()
}

// Decompressor is a streaming zstd decompressor over an underlying reader.
type Decompressor struct {
	dec *zstd.Decoder
}

// NewDecompressor opens a decompressor over r. Decoding is synchronous
// and lazy: bytes are pulled from r only as Read demands them, so a
// stream that was flushed but not yet terminated can be read up to its
// flush point.
func NewDecompressor(r io.Reader) (*Decompressor, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("opening zstd decoder: %w", err)
	}
	return &Decompressor{dec: dec}, nil
}

func (d *Decompressor) Read(p []byte) (int, error) {
	return d.dec.Read(p)
}

// Close releases the decoder.
func (d *Decompressor) Close() {
	d.dec.Close()
}
