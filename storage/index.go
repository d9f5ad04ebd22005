package storage

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/sjkallio/kirjuri/types"
)

// indexEntry is one materialized resource in the in-memory btree,
// ordered by its storage key so per-connection scans are a range walk.
type indexEntry struct {
	key          string
	ConnectionID string
	ResourceID   string
	Type         types.ResourceType
	IsActive     bool
	Deleted      bool
	SnapshotID   string
}

// rebuildIndex loads every materialized row from disk into the btree.
// Called once on open.
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var row MaterializedResource
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			s.index.ReplaceOrInsert(&indexEntry{
				key:          string(k),
				ConnectionID: row.ConnectionID,
				ResourceID:   row.ProviderResourceID,
				Type:         row.Type,
				IsActive:     row.IsActive,
				Deleted:      row.Deleted,
				SnapshotID:   row.SnapshotID,
			})
			return nil
		})
	})
}

func (s *Store) indexPut(snap types.Snapshot, res types.Resource, deleted bool) {
	s.index.ReplaceOrInsert(&indexEntry{
		key:          string(resourceKey(snap.ConnectionID, res.ProviderResourceID)),
		ConnectionID: snap.ConnectionID,
		ResourceID:   res.ProviderResourceID,
		Type:         res.Type,
		IsActive:     res.IsActive,
		Deleted:      deleted,
		SnapshotID:   snap.ID,
	})
}

func (s *Store) indexDelete(connectionID, resourceID string) {
	probe := &indexEntry{key: string(resourceKey(connectionID, resourceID))}
	if existing, found := s.index.Get(probe); found {
		existing.Deleted = true
		existing.IsActive = false
		s.index.ReplaceOrInsert(existing)
	}
}

// liveResourceKeys walks the index and returns the storage keys of all
// non-tombstoned rows for a connection, in key order.
func (s *Store) liveResourceKeys(connectionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := string(resourcePrefix(connectionID))
	var keys []string
	s.index.AscendGreaterOrEqual(&indexEntry{key: prefix}, func(e *indexEntry) bool {
		if e.ConnectionID != connectionID {
			return false
		}
		if !e.Deleted {
			keys = append(keys, e.key)
		}
		return true
	})
	return keys
}
