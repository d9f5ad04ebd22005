package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/sjkallio/kirjuri/types"
)

// LatestSuccessfulSnapshot returns the most recent snapshot with
// success status for a connection, or ErrNotFound. Error and running
// snapshots never anchor a diff.
func (s *Store) LatestSuccessfulSnapshot(connectionID string) (types.Snapshot, error) {
	snaps, err := s.ListSnapshots(connectionID, 0)
	if err != nil {
		return types.Snapshot{}, err
	}
	for _, snap := range snaps {
		if snap.Status == types.SnapshotSuccess {
			return snap, nil
		}
	}
	return types.Snapshot{}, fmt.Errorf("no successful snapshot for connection %s: %w", connectionID, ErrNotFound)
}

// ListSnapshots returns snapshots for a connection, newest first.
// limit 0 means no limit.
func (s *Store) ListSnapshots(connectionID string, limit int) ([]types.Snapshot, error) {
	var snaps []types.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		prefix := snapshotPrefix(connectionID)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var snap types.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys sort oldest first
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// GetSnapshot looks a snapshot up by id.
func (s *Store) GetSnapshot(connectionID, snapshotID string) (types.Snapshot, error) {
	snaps, err := s.ListSnapshots(connectionID, 0)
	if err != nil {
		return types.Snapshot{}, err
	}
	for _, snap := range snaps {
		if snap.ID == snapshotID {
			return snap, nil
		}
	}
	return types.Snapshot{}, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
}

// SnapshotStates returns all state rows recorded under one snapshot,
// in resource id order.
func (s *Store) SnapshotStates(snapshotID string) ([]types.ResourceState, error) {
	var states []types.ResourceState

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketStates).Cursor()
		prefix := statePrefix(snapshotID)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var st types.ResourceState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			states = append(states, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// CurrentResources returns the live materialized rows for a
// connection: everything the latest syncs have written that has not
// been tombstoned. Zombies are included, they still bill.
func (s *Store) CurrentResources(connectionID string) ([]MaterializedResource, error) {
	keys := s.liveResourceKeys(connectionID)

	resources := make([]MaterializedResource, 0, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)
		for _, key := range keys {
			value := bucket.Get([]byte(key))
			if value == nil {
				continue
			}
			var row MaterializedResource
			if err := json.Unmarshal(value, &row); err != nil {
				return err
			}
			resources = append(resources, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// CurrentStates returns the non-deleted state rows of the latest
// successful snapshot. Same resource set as CurrentResources, but in
// audit-trail form.
func (s *Store) CurrentStates(connectionID string) ([]types.ResourceState, error) {
	latest, err := s.LatestSuccessfulSnapshot(connectionID)
	if err != nil {
		return nil, err
	}
	states, err := s.SnapshotStates(latest.ID)
	if err != nil {
		return nil, err
	}

	live := states[:0]
	for _, st := range states {
		if st.StateAction != types.ActionDeleted {
			live = append(live, st)
		}
	}
	return live, nil
}

// GetResource returns the materialized row for one resource,
// tombstoned or not.
func (s *Store) GetResource(connectionID, resourceID string) (MaterializedResource, error) {
	var row MaterializedResource
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketResources).Get(resourceKey(connectionID, resourceID))
		if value == nil {
			return fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
		}
		return json.Unmarshal(value, &row)
	})
	return row, err
}

// ResourceHistory returns every state row ever recorded for one
// resource across all snapshots of a connection, oldest first. Full
// scan over the states bucket; history queries are rare.
func (s *Store) ResourceHistory(connectionID, resourceID string) ([]types.ResourceState, error) {
	suffix := "/" + resourceID
	var states []types.ResourceState

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStates).ForEach(func(k, v []byte) error {
			if !strings.HasSuffix(string(k), suffix) {
				return nil
			}
			var st types.ResourceState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			if st.ConnectionID == connectionID && st.ProviderResourceID == resourceID {
				states = append(states, st)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].RecordedAt.Before(states[j].RecordedAt)
	})
	return states, nil
}

// UnrecognizedFor returns the accumulated unclassifiable billing rows
// for a connection, in append order.
func (s *Store) UnrecognizedFor(connectionID string) ([]types.UnrecognizedResource, error) {
	var items []types.UnrecognizedResource

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketUnrecognized).Cursor()
		prefix := []byte(fmt.Sprintf("conn/%s/", connectionID))
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item types.UnrecognizedResource
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
