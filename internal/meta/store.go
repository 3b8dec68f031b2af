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

// Store is the per-archive metadata database (metadata.db): file rows in
// seal order, plus empty-directory rows recorded during ingestion.
type Store interface {
	AddFiles(entries []FileEntry) error
	ListFiles() ([]FileEntry, error)
	AddEmptyDirectories(paths []string) error
	ListEmptyDirectories() ([]string, error)
	Ping() error
	Close() error
}

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltStore opens or creates a per-archive metadata database.
func NewBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening metadata db %s: %v", types.ErrDbBadURI, path, err)
	}

	s := &BoltStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) initSchema() error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		sys, err := tx.CreateBucketIfNotExists(bucketSystem)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEmptyDirs); err != nil {
			return err
		}
		if sys.Get(keySchemaVersion) == nil {
			return sys.Put(keySchemaVersion, uint64ToBytes(currentSchemaVersion))
		}
		return nil
	}); err != nil {
		return err
	}
	return s.Migrate()
}

func encodeFileEntry(entry *FileEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFileEntry(data []byte) (*FileEntry, error) {
	var entry FileEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// AddFiles appends file rows. Rows are keyed by an autoincrementing
// sequence so listing preserves seal order.
func (s *BoltStore) AddFiles(entries []FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
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
	s.logger.Debug("file metadata persisted", zap.Int("files", len(entries)))
	return nil
}

// ListFiles returns every file row in seal order.
func (s *BoltStore) ListFiles() ([]FileEntry, error) {
	var entries []FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		return files.ForEach(func(k, v []byte) error {
			entry, err := decodeFileEntry(v)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
			return nil
		})
	})
	return entries, err
}

// AddEmptyDirectories records directories that held no logs, so extraction
// can recreate the source tree.
func (s *BoltStore) AddEmptyDirectories(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dirs := tx.Bucket(bucketEmptyDirs)
		for _, p := range paths {
			if err := dirs.Put([]byte(p), nil); err != nil {
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

// ListEmptyDirectories returns the recorded empty-directory paths.
func (s *BoltStore) ListEmptyDirectories() ([]string, error) {
	var paths []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		dirs := tx.Bucket(bucketEmptyDirs)
		return dirs.ForEach(func(k, v []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	return paths, err
}

func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
