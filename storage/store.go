// Package storage persists snapshots, resource states, and the
// materialized resource table in bbolt, with an in-memory btree index
// over the materialized rows for fast current-state lookups.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/sjkallio/kirjuri/types"
)

// Bucket names in bbolt
var (
	bucketSnapshots    = []byte("snapshots")
	bucketStates       = []byte("states")
	bucketResources    = []byte("resources")
	bucketUnrecognized = []byte("unrecognized")
	bucketMeta         = []byte("meta")
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict means a newer sync already wrote the row. The caller
	// retries in skip-stale mode so the newer rows win.
	ErrConflict = errors.New("storage: write conflict")
)

// MaterializedResource is the latest known row for one resource,
// stamped with the snapshot that wrote it.
type MaterializedResource struct {
	types.Resource

	SnapshotID string    `json:"snapshot_id"`
	SyncedAt   time.Time `json:"synced_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// Store is the bbolt-backed persistence layer. One Store per process;
// bbolt serializes writers, the mutex guards the in-memory index.
type Store struct {
	mu sync.RWMutex

	// In-memory index over materialized resources
	index *btree.BTreeG[*indexEntry]

	db  *bbolt.DB
	dir string
}

// Open opens or creates the database under dir and rebuilds the
// resource index from disk.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, "kirjuri.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketStates, bucketResources, bucketUnrecognized, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		index: btree.NewG[*indexEntry](32, func(a, b *indexEntry) bool {
			return a.key < b.key
		}),
		db:  db,
		dir: dir,
	}

	if err := s.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes a snapshot record. Called once when the run
// opens and again on each terminal transition; the key is stable so
// the terminal write replaces the running one.
func (s *Store) SaveSnapshot(snap types.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSnapshots).Put(snapshotKey(snap), value)
	})
}

// SaveStates writes all state rows of one snapshot atomically.
func (s *Store) SaveStates(states []types.ResourceState) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketStates)
		for _, st := range states {
			value, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if err := bucket.Put(stateKey(st.SnapshotID, st.ProviderResourceID), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertResources replaces the materialized rows for one connection
// with the reconciled output of snap. Ids in deleted keep their last
// row but get tombstoned. Returns ErrConflict if a later snapshot
// already wrote any of the rows.
func (s *Store) UpsertResources(snap types.Snapshot, resources []types.Resource, deleted []string) error {
	return s.upsertResources(snap, resources, deleted, false)
}

// UpsertResourcesSkipStale writes like UpsertResources but leaves rows
// a newer snapshot already wrote untouched instead of failing the
// batch. Used on conflict recovery: the newer rows win.
func (s *Store) UpsertResourcesSkipStale(snap types.Snapshot, resources []types.Resource, deleted []string) error {
	return s.upsertResources(snap, resources, deleted, true)
}

func (s *Store) upsertResources(snap types.Snapshot, resources []types.Resource, deleted []string, skipStale bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]types.Resource, 0, len(resources))
	tombstoned := make([]string, 0, len(deleted))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)

		for _, res := range resources {
			key := resourceKey(snap.ConnectionID, res.ProviderResourceID)
			if err := checkStale(bucket, key, snap.StartedAt); err != nil {
				if skipStale && errors.Is(err, ErrConflict) {
					continue
				}
				return err
			}
			row := MaterializedResource{
				Resource:   res,
				SnapshotID: snap.ID,
				SyncedAt:   snap.StartedAt,
			}
			value, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, value); err != nil {
				return err
			}
			written = append(written, res)
		}

		for _, id := range deleted {
			key := resourceKey(snap.ConnectionID, id)
			existing := bucket.Get(key)
			if existing == nil {
				continue
			}
			if err := checkStale(bucket, key, snap.StartedAt); err != nil {
				if skipStale && errors.Is(err, ErrConflict) {
					continue
				}
				return err
			}
			var row MaterializedResource
			if err := json.Unmarshal(existing, &row); err != nil {
				return err
			}
			row.SnapshotID = snap.ID
			row.SyncedAt = snap.StartedAt
			row.Deleted = true
			row.IsActive = false
			value, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, value); err != nil {
				return err
			}
			tombstoned = append(tombstoned, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Keep the in-memory index in step with disk. Only rows actually
	// written this transaction are synced.
	for _, res := range written {
		s.indexPut(snap, res, false)
	}
	for _, id := range tombstoned {
		s.indexDelete(snap.ConnectionID, id)
	}
	return nil
}

// checkStale rejects a write when the stored row came from a snapshot
// that started later than the one writing now.
func checkStale(bucket *bbolt.Bucket, key []byte, startedAt time.Time) error {
	existing := bucket.Get(key)
	if existing == nil {
		return nil
	}
	var row MaterializedResource
	if err := json.Unmarshal(existing, &row); err != nil {
		return err
	}
	if row.SyncedAt.After(startedAt) {
		return fmt.Errorf("%w: row %s written by newer snapshot %s", ErrConflict, key, row.SnapshotID)
	}
	return nil
}

// AppendUnrecognized appends unclassifiable billing rows. Append-only:
// every call produces new rows, repeats across syncs are intentional.
func (s *Store) AppendUnrecognized(items []types.UnrecognizedResource) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketUnrecognized)
		for _, item := range items {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			value, err := json.Marshal(item)
			if err != nil {
				return err
			}
			key := fmt.Sprintf("conn/%s/%020d", item.ConnectionID, seq)
			if err := bucket.Put([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Key builders. Snapshot keys sort by start time within a connection,
// state keys group by snapshot.

func snapshotKey(snap types.Snapshot) []byte {
	return []byte(fmt.Sprintf("conn/%s/%020d/%s", snap.ConnectionID, snap.StartedAt.UnixNano(), snap.ID))
}

func snapshotPrefix(connectionID string) []byte {
	return []byte(fmt.Sprintf("conn/%s/", connectionID))
}

func stateKey(snapshotID, resourceID string) []byte {
	return []byte(fmt.Sprintf("snapshot/%s/%s", snapshotID, resourceID))
}

func statePrefix(snapshotID string) []byte {
	return []byte(fmt.Sprintf("snapshot/%s/", snapshotID))
}

func resourceKey(connectionID, resourceID string) []byte {
	return []byte(fmt.Sprintf("conn/%s/%s", connectionID, resourceID))
}

func resourcePrefix(connectionID string) []byte {
	return []byte(fmt.Sprintf("conn/%s/", connectionID))
}
