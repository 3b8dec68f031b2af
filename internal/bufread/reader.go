// Package bufread provides a buffered reader over a forward-only byte
// source with a checkpoint that keeps already-read bytes available for
// seeking back. Higher layers use it to walk streams that cannot rewind,
// such as chunked object-storage downloads.
package bufread

import (
	"fmt"
	"io"

	"github.com/gftdcojp/logvault/internal/types"
)

// DefaultBufferSize is used when no explicit size is configured.
const DefaultBufferSize = 64 * 1024

// Source is a forward-only byte source. Sources that also implement
// io.Seeker get native seeks when no checkpoint constrains the reader.
type Source interface {
	io.Reader
}

// Reader buffers a Source and supports bounded seek-back.
//
// Without a checkpoint the buffer holds at most one buffer-size window.
// While a checkpoint is set the buffer grows to cover every byte from the
// checkpoint to the highest position read, and any position in that range
// can be sought without touching the source.
type Reader struct {
	src Source

	bufSize int // power of two, multiple of 4096

	buf            []byte // buffered data
	bufBeginPos    int64  // stream position of buf[0]
	pos            int64  // logical read position
	highestReadPos int64

	checkpointSet bool
	checkpointPos int64
}

// NewReader creates a reader with the given buffer size. The size must be
// a power of two and a multiple of 4096; pass DefaultBufferSize when in
// doubt.
func NewReader(bufferSize int) (*Reader, error) {
	r := &Reader{}
	if err := r.SetBufferSize(bufferSize); err != nil {
		return nil, err
	}
	return r, nil
}

// SetBufferSize changes the buffer size. Only permitted while no source is
// open.
func (r *Reader) SetBufferSize(bufferSize int) error {
	if r.src != nil {
		return fmt.Errorf("%w: buffer size cannot change while a source is open", types.ErrNotReady)
	}
	if bufferSize <= 0 || bufferSize%4096 != 0 || bufferSize&(bufferSize-1) != 0 {
		return fmt.Errorf("%w: buffer size %d must be a power of two multiple of 4096", types.ErrBadParam, bufferSize)
	}
	r.bufSize = bufferSize
	return nil
}

// Open attaches a source and resets all positions.
func (r *Reader) Open(src Source) error {
	if r.src != nil {
		return fmt.Errorf("%w: reader already has an open source", types.ErrNotReady)
	}
	if src == nil {
		return fmt.Errorf("%w: nil source", types.ErrBadParam)
	}
	r.src = src
	r.buf = nil
	r.bufBeginPos = 0
	r.pos = 0
	r.highestReadPos = 0
	r.checkpointSet = false
	return nil
}

// Close detaches the source. Closing the source itself is the caller's
// responsibility.
func (r *Reader) Close() {
	r.src = nil
	r.buf = nil
	r.checkpointSet = false
}

// TryGetPos returns the logical read position.
func (r *Reader) TryGetPos() (int64, error) {
	if r.src == nil {
		return 0, types.ErrNotInit
	}
	return r.pos, nil
}

// TryRead reads up to len(p) bytes, refilling the buffer from the source
// as needed. Returns ErrEndOfFile only when no bytes could be read.
func (r *Reader) TryRead(p []byte) (int, error) {
	if r.src == nil {
		return 0, types.ErrNotInit
	}
	if p == nil {
		return 0, fmt.Errorf("%w: nil buffer", types.ErrBadParam)
	}

	total := 0
	for total < len(p) {
		n := copy(p[total:], r.buffered())
		total += n
		r.pos += int64(n)

		if total == len(p) {
			break
		}
		refilled, err := r.refill(r.bufSize)
		if err != nil {
			return total, err
		}
		if refilled == 0 {
			break
		}
	}
	if total == 0 {
		return 0, types.ErrEndOfFile
	}
	if r.pos > r.highestReadPos {
		r.highestReadPos = r.pos
	}
	return total, nil
}

// TryReadToDelimiter reads until delim is found. The bytes read (including
// the delimiter iff keepDelim) are appended to *dst when appendTo is true,
// otherwise *dst is replaced.
func (r *Reader) TryReadToDelimiter(delim byte, keepDelim, appendTo bool, dst *[]byte) error {
	if r.src == nil {
		return types.ErrNotInit
	}
	if dst == nil {
		return fmt.Errorf("%w: nil destination", types.ErrBadParam)
	}
	if !appendTo {
		*dst = (*dst)[:0]
	}

	appended := 0
	for {
		window := r.buffered()
		for i, c := range window {
			if c == delim {
				*dst = append(*dst, window[:i]...)
				if keepDelim {
					*dst = append(*dst, delim)
				}
				r.pos += int64(i) + 1
				if r.pos > r.highestReadPos {
					r.highestReadPos = r.pos
				}
				return nil
			}
		}
		*dst = append(*dst, window...)
		appended += len(window)
		r.pos += int64(len(window))

		refilled, err := r.refill(r.bufSize)
		if err != nil {
			return err
		}
		if refilled == 0 {
			if r.pos > r.highestReadPos {
				r.highestReadPos = r.pos
			}
			if appended == 0 {
				return types.ErrEndOfFile
			}
			return nil
		}
	}
}

// PeekBufferedData returns up to n buffered bytes at the current position
// without consuming them. The returned slice aliases the internal buffer
// and is invalidated by the next read, peek, or seek.
func (r *Reader) PeekBufferedData(n int) ([]byte, error) {
	if r.src == nil {
		return nil, types.ErrNotInit
	}
	if len(r.buffered()) == 0 {
		if _, err := r.refill(r.bufSize); err != nil {
			return nil, err
		}
	}
	window := r.buffered()
	if n < len(window) {
		window = window[:n]
	}
	return window, nil
}

// TrySeekFromBegin moves the logical position to pos.
//
// Backward seeks require a checkpoint covering pos, that pos is still
// resident in the buffer, or (without a checkpoint) a source that can seek
// natively; on a forward-only source they otherwise fail with
// ErrOutOfBounds. Forward seeks beyond the buffer advance
// the source (natively when it can seek, by reading and discarding
// otherwise), growing the buffer instead when a checkpoint is set.
func (r *Reader) TrySeekFromBegin(pos int64) error {
	if r.src == nil {
		return types.ErrNotInit
	}
	if pos < 0 {
		return fmt.Errorf("%w: negative position", types.ErrBadParam)
	}
	if pos == r.pos {
		return nil
	}

	bufEnd := r.bufBeginPos + int64(len(r.buf))

	if pos < r.pos {
		if r.checkpointSet {
			if pos < r.checkpointPos {
				return fmt.Errorf("%w: seek to %d before checkpoint %d", types.ErrOutOfBounds, pos, r.checkpointPos)
			}
			r.pos = pos
			return nil
		}
		if pos >= r.bufBeginPos && pos <= bufEnd {
			// Still resident in the buffer
			r.pos = pos
			return nil
		}
		if seeker, ok := r.src.(io.Seeker); ok {
			if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
				return fmt.Errorf("seeking source: %w", err)
			}
			r.buf = nil
			r.bufBeginPos = pos
			r.pos = pos
			return nil
		}
		return fmt.Errorf("%w: seek back to %d without a checkpoint", types.ErrOutOfBounds, pos)
	}

	// Forward seek
	if pos <= bufEnd {
		r.pos = pos
		if r.pos > r.highestReadPos {
			r.highestReadPos = r.pos
		}
		return nil
	}

	if r.checkpointSet {
		// Grow the buffer up to pos so the checkpoint range stays covered
		need := pos - bufEnd
		refilled, err := r.refill(int(need))
		if err != nil {
			return err
		}
		if int64(refilled) < need {
			return fmt.Errorf("%w: seek to %d past end of source", types.ErrEndOfFile, pos)
		}
		r.pos = pos
		if r.pos > r.highestReadPos {
			r.highestReadPos = r.pos
		}
		return nil
	}

	if seeker, ok := r.src.(io.Seeker); ok {
		if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("seeking source: %w", err)
		}
		r.buf = nil
		r.bufBeginPos = pos
		r.pos = pos
		if r.pos > r.highestReadPos {
			r.highestReadPos = r.pos
		}
		return nil
	}

	// Forward-only: discard until pos
	r.pos = bufEnd
	discard := make([]byte, 32*1024)
	for r.pos < pos {
		chunk := int64(len(discard))
		if pos-r.pos < chunk {
			chunk = pos - r.pos
		}
		n, err := r.src.Read(discard[:chunk])
		r.pos += int64(n)
		if err == io.EOF && n == 0 {
			return fmt.Errorf("%w: seek to %d past end of source", types.ErrEndOfFile, pos)
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("advancing source: %w", err)
		}
	}
	r.buf = nil
	r.bufBeginPos = pos
	if r.pos > r.highestReadPos {
		r.highestReadPos = r.pos
	}
	return nil
}

// SetCheckpoint marks the current position. Until ClearCheckpoint, every
// byte read from here on stays buffered and can be sought back to. Setting
// a new checkpoint releases the bytes before the current position.
func (r *Reader) SetCheckpoint() int64 {
	if r.checkpointSet && r.checkpointPos < r.pos {
		r.dropBufferBefore(r.pos)
	}
	r.checkpointSet = true
	r.checkpointPos = r.pos
	return r.pos
}

// ClearCheckpoint releases the checkpoint. The buffer is shrunk so it
// begins at the highest read position aligned down to the buffer-size
// grid, and the logical position moves to the highest read position.
func (r *Reader) ClearCheckpoint() error {
	if !r.checkpointSet {
		return nil
	}
	bufEnd := r.bufBeginPos + int64(len(r.buf))
	if bufEnd <= r.highestReadPos || bufEnd-r.highestReadPos > int64(r.bufSize) {
		// The buffer no longer lines up with what was read through it.
		return fmt.Errorf("%w: buffer [%d, %d) inconsistent with highest read position %d",
			types.ErrCorrupt, r.bufBeginPos, bufEnd, r.highestReadPos)
	}
	r.pos = r.highestReadPos
	newBegin := r.highestReadPos &^ int64(r.bufSize-1)
	if newBegin < r.bufBeginPos {
		newBegin = r.bufBeginPos
	}
	r.dropBufferBefore(newBegin)
	r.checkpointSet = false
	return nil
}

// buffered returns the unread bytes currently in the buffer.
func (r *Reader) buffered() []byte {
	off := r.pos - r.bufBeginPos
	if off < 0 || off >= int64(len(r.buf)) {
		return nil
	}
	return r.buf[off:]
}

// dropBufferBefore discards buffered bytes before the given stream
// position.
func (r *Reader) dropBufferBefore(pos int64) {
	off := pos - r.bufBeginPos
	if off <= 0 {
		return
	}
	if off >= int64(len(r.buf)) {
		r.buf = nil
		r.bufBeginPos = pos
		return
	}
	remaining := int64(len(r.buf)) - off
	newBuf := make([]byte, remaining, r.quantize(int(remaining)))
	copy(newBuf, r.buf[off:])
	r.buf = newBuf
	r.bufBeginPos = pos
}

// quantize rounds n up to a multiple of the buffer size.
func (r *Reader) quantize(n int) int {
	if n == 0 {
		return r.bufSize
	}
	return ((n-1)/r.bufSize + 1) * r.bufSize
}

// refill reads up to a quantized amount from the source. Without a
// checkpoint the buffer window is replaced; with one it grows. Returns the
// number of bytes added, 0 at end of source.
func (r *Reader) refill(n int) (int, error) {
	want := r.quantize(n)

	if !r.checkpointSet {
		bufEnd := r.bufBeginPos + int64(len(r.buf))
		buf := make([]byte, want)
		read, err := readFull(r.src, buf)
		if err != nil {
			return 0, err
		}
		r.buf = buf[:read]
		r.bufBeginPos = bufEnd
		return read, nil
	}

	grown := append(r.buf, make([]byte, want)...)
	read, err := readFull(r.src, grown[len(r.buf):])
	if err != nil {
		return 0, err
	}
	r.buf = grown[:len(r.buf)+read]
	return read, nil
}

// readFull reads until the buffer is full or the source is exhausted.
func readFull(src io.Reader, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := src.Read(p[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("reading source: %w", err)
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}
