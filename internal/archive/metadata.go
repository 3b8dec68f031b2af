package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gftdcojp/logvault/internal/types"
)

// Archive file names within the archive directory.
const (
	MetadataFilename        = "metadata"
	LogtypeDictFilename     = "logtype.dict"
	LogtypeSegindexFilename = "logtype.segindex"
	VarDictFilename         = "var.dict"
	VarSegindexFilename     = "var.segindex"
	MetadataDBFilename      = "metadata.db"
)

// FormatVersion identifies the archive layout.
const FormatVersion uint32 = 1

// metadataFileSize: format_version:u32, stable_uncompressed_size:u64,
// stable_size:u64.
const metadataFileSize = 4 + 8 + 8

// metadataFile is the fixed-size archive metadata header. The stable sizes
// are the crash-consistency boundary: readers trust only data accounted
// for here.
type metadataFile struct {
	f *os.File
}

// createMetadataFile writes the initial header with zero stable sizes.
func createMetadataFile(path string) (*metadataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("creating archive metadata file: %w", err)
	}
	m := &metadataFile{f: f}
	var buf [metadataFileSize]byte
	binary.BigEndian.PutUint32(buf[0:4], FormatVersion)
	if _, err := f.Write(buf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing archive metadata file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// updateSizes rewrites the stable-size bytes in place.
func (m *metadataFile) updateSizes(uncompressedSize, size uint64) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uncompressedSize)
	binary.BigEndian.PutUint64(buf[8:16], size)
	if _, err := m.f.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("updating archive metadata sizes: %w", err)
	}
	return m.f.Sync()
}

func (m *metadataFile) close() error {
	return m.f.Close()
}

// ReadMetadataFile reads an archive's metadata header.
func ReadMetadataFile(path string) (version uint32, uncompressedSize, size uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("opening archive metadata file: %w", err)
	}
	defer f.Close()

	var buf [metadataFileSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: archive metadata file %s", types.ErrTruncated, path)
	}
	version = binary.BigEndian.Uint32(buf[0:4])
	if version != FormatVersion {
		return 0, 0, 0, fmt.Errorf("%w: archive format version %d", types.ErrUnsupported, version)
	}
	uncompressedSize = binary.BigEndian.Uint64(buf[4:12])
	size = binary.BigEndian.Uint64(buf[12:20])
	return version, uncompressedSize, size, nil
}
