package meta

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Migrate runs any pending schema migrations.
func (s *BoltStore) Migrate() error {
	var version uint64
	s.db.View(func(tx *bbolt.Tx) error {
		sys := tx.Bucket(bucketSystem)
		if sys == nil {
			return nil
		}
		if v := sys.Get(keySchemaVersion); v != nil {
			version = bytesToUint64(v)
		}
		return nil
	})

	if version > currentSchemaVersion {
		return fmt.Errorf("metadata db schema version %d is newer than supported %d",
			version, currentSchemaVersion)
	}
	return nil
}
