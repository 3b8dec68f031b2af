package meta

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/gftdcojp/logvault/internal/types"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// GlobalStore is the metadata database shared across archives. Writers
// from independent archives contend only here; bbolt serializes their
// update transactions.
type GlobalStore interface {
	AddArchive(entry ArchiveEntry) error
	UpdateArchiveSize(archiveID string, uncompressedSize, size uint64) error
	GetArchive(archiveID string) (*ArchiveEntry, error)
	ListArchives() ([]ArchiveEntry, error)
	AddFiles(archiveID string, entries []FileEntry) error
	Ping() error
	Close() error
}

// GlobalBoltStore implements GlobalStore using bbolt.
type GlobalBoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewGlobalBoltStore opens or creates the global metadata database.
func NewGlobalBoltStore(path string, logger *zap.Logger) (*GlobalBoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening global metadata db %s: %v", types.ErrDbBadURI, path, err)
	}
	s := &GlobalBoltStore{db: db, logger: logger}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketArchives); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketArchiveFiles)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func encodeArchiveEntry(entry *ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeArchiveEntry(data []byte) (*ArchiveEntry, error) {
	var entry ArchiveEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GlobalBoltStore) AddArchive(entry ArchiveEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := encodeArchiveEntry(&entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketArchives).Put([]byte(entry.ID), data)
	})
}

func (s *GlobalBoltStore) UpdateArchiveSize(archiveID string, uncompressedSize, size uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		archives := tx.Bucket(bucketArchives)
		raw := archives.Get([]byte(archiveID))
		if raw == nil {
			return fmt.Errorf("archive %q not found", archiveID)
		}
		entry, err := decodeArchiveEntry(raw)
		if err != nil {
			return err
		}
		entry.UncompressedSize = uncompressedSize
		entry.Size = size
		data, err := encodeArchiveEntry(entry)
		if err != nil {
			return err
		}
		return archives.Put([]byte(archiveID), data)
	})
}

func (s *GlobalBoltStore) GetArchive(archiveID string) (*ArchiveEntry, error) {
	var entry *ArchiveEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketArchives).Get([]byte(archiveID))
		if raw == nil {
			return fmt.Errorf("archive %q not found", archiveID)
		}
		var err error
		entry, err = decodeArchiveEntry(raw)
		return err
	})
	return entry, err
}

func (s *GlobalBoltStore) ListArchives() ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArchives).ForEach(func(k, v []byte) error {
			entry, err := decodeArchiveEntry(v)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
			return nil
		})
	})
	return entries, err
}

// AddFiles records file rows under the owning archive.
func (s *GlobalBoltStore) AddFiles(archiveID string, entries []FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(bucketArchiveFiles)
		files, err := parent.CreateBucketIfNotExists([]byte(archiveID))
		if err != nil {
			return err
		}
		for i := range entries {
			data, err := encodeFileEntry(&entries[i])
			if err != nil {
				return err
			}
			seq, err := files.NextSequence()
			if err != nil {
				return err
			}
			if err := files.Put(uint64ToBytes(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrDbBulkWriteFailed, err)
	}
	return nil
}

func (s *GlobalBoltStore) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (s *GlobalBoltStore) Close() error {
	return s.db.Close()
}
