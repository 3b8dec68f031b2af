// Package dict implements the logtype and variable dictionaries: persistent
// value-to-ID maps with a compressed backing file and a segment-index
// sidecar recording which segments reference each entry.
package dict

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"
	"github.com/gftdcojp/logvault/internal/types"
)

// Entry is one dictionary entry. Segments accumulates every segment that
// referenced the entry; for logtype dictionaries PlaceholderPositions
// caches the offsets of the variable placeholders so messages can be
// replayed without rescanning the logtype bytes.
type Entry struct {
	ID                   uint64
	Value                string
	Segments             *roaring.Bitmap
	PlaceholderPositions []uint32
}

// writeTo appends the entry's on-disk form:
// (id:u64, byte_length:u32, bytes[, num_positions:u32, positions:[u32]]).
func (e *Entry) writeTo(w io.Writer, withPositions bool) error {
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], e.ID)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(e.Value)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, e.Value); err != nil {
		return err
	}
	if !withPositions {
		return nil
	}
	buf := make([]byte, 4+4*len(e.PlaceholderPositions))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(e.PlaceholderPositions)))
	for i, p := range e.PlaceholderPositions {
		binary.BigEndian.PutUint32(buf[4+4*i:], p)
	}
	_, err := w.Write(buf)
	return err
}

// readEntry reads one entry written by writeTo.
func readEntry(r io.Reader, withPositions bool) (*Entry, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[8:12])
	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, fmt.Errorf("%w: dictionary entry value", types.ErrTruncated)
	}
	e := &Entry{
		ID:       binary.BigEndian.Uint64(hdr[0:8]),
		Value:    string(value),
		Segments: roaring.New(),
	}
	if withPositions {
		var cnt [4]byte
		if _, err := io.ReadFull(r, cnt[:]); err != nil {
			return nil, fmt.Errorf("%w: placeholder position count", types.ErrTruncated)
		}
		n := binary.BigEndian.Uint32(cnt[:])
		buf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: placeholder positions", types.ErrTruncated)
		}
		e.PlaceholderPositions = make([]uint32, n)
		for i := range e.PlaceholderPositions {
			e.PlaceholderPositions[i] = binary.BigEndian.Uint32(buf[4*i:])
		}
	}
	return e, nil
}
