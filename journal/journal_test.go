package journal

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, j.Append(EntryObserved, "conn-1", "snap-1", map[string]int{"inventory": 12, "billing": 30}))
	require.NoError(t, j.Append(EntryCorrelated, "conn-1", "snap-1", map[string]int{"resources": 14, "unrecognized": 2}))
	require.NoError(t, j.Append(EntryFinalized, "conn-1", "snap-1", nil))
	require.NoError(t, j.Close())

	var entries []*Entry
	err = Replay(dir, time.Time{}, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EntryObserved, entries[0].Type)
	assert.Equal(t, int64(1), entries[0].Sequence)
	assert.Equal(t, "conn-1", entries[0].ConnectionID)
	assert.Equal(t, "snap-1", entries[0].SnapshotID)
	assert.Equal(t, EntryFinalized, entries[2].Type)
	assert.Equal(t, int64(3), entries[2].Sequence)
}

func TestAppendError(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.AppendError(EntryFailed, "conn-1", "snap-1", nil, errors.New("authentication failure")))
	require.NoError(t, j.Close())

	files := listFiles(dir)
	require.Len(t, files, 1)

	reader, err := NewReader(files[0])
	require.NoError(t, err)
	defer reader.Close()

	entry, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, EntryFailed, entry.Type)
	assert.Equal(t, "authentication failure", entry.Error)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSequenceContinuesAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(EntryObserved, "conn-1", "snap-1", nil))
	require.NoError(t, j.Append(EntryFinalized, "conn-1", "snap-1", nil))
	require.NoError(t, j.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, reopened.Append(EntryObserved, "conn-1", "snap-2", nil))
	require.NoError(t, reopened.Close())

	var last int64
	err = Replay(dir, time.Time{}, func(e *Entry) error {
		assert.Greater(t, e.Sequence, last, "sequences strictly increase")
		last = e.Sequence
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestReplaySince(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(EntryObserved, "conn-1", "snap-1", nil))
	require.NoError(t, j.Close())

	count := 0
	err = Replay(dir, time.Now().Add(time.Hour), func(e *Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count, "entries before the cutoff are skipped")
}
