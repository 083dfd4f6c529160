package hidden

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// newTestStore creates a store backed by a file in a fresh temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "hidden_ports.json"))
	require.NoError(t, err)
	return store
}

// TestStore_MissingFileStartsEmpty verifies first-run behavior: no
// state file means an empty store, not an error.
func TestStore_MissingFileStartsEmpty(t *testing.T) {
	store := newTestStore(t)
	assert.Empty(t, store.List())
	assert.False(t, store.Covers(8080, model.ProtocolTCP))
}

// TestStore_HideUnhideRestores verifies the round-trip property:
// unhiding a previously hidden port restores the original
// classification exactly.
func TestStore_HideUnhideRestores(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Hide(8080)
	require.NoError(t, err)
	assert.True(t, store.Covers(8080, model.ProtocolTCP))
	assert.True(t, store.Covers(8080, model.ProtocolUDP)) // no protocol → both

	_, err = store.Unhide(8080)
	require.NoError(t, err)
	assert.False(t, store.Covers(8080, model.ProtocolTCP))
	assert.False(t, store.Covers(8080, model.ProtocolUDP))
	assert.Empty(t, store.List())
}

// TestStore_ProtocolScopedHide checks that hiding with an explicit
// protocol leaves the other protocol visible.
func TestStore_ProtocolScopedHide(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.Hide(53, model.ProtocolUDP)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, model.HiddenPortEntry{Start: 53, End: 53, Protocol: model.ProtocolUDP}, entries[0])
	assert.True(t, store.Covers(53, model.ProtocolUDP))
	assert.False(t, store.Covers(53, model.ProtocolTCP))
}

// TestStore_Normalization verifies that adjacent and overlapping
// single-port entries coalesce into minimal range entries.
func TestStore_Normalization(t *testing.T) {
	store := newTestStore(t)

	_, err := store.HideBatch([]int{82, 80, 81, 80}, model.ProtocolTCP)
	require.NoError(t, err)

	assert.Equal(t, []model.HiddenPortEntry{
		{Start: 80, End: 82, Protocol: model.ProtocolTCP},
	}, store.List())
}

// TestStore_UnhideSplitsRange checks that unhiding a port inside a
// coalesced range splits it, scoped to the requested protocol.
func TestStore_UnhideSplitsRange(t *testing.T) {
	store := newTestStore(t)

	_, err := store.HideBatch([]int{8000, 8001, 8002, 8003, 8004, 8005})
	require.NoError(t, err)

	entries, err := store.Unhide(8002, model.ProtocolTCP)
	require.NoError(t, err)

	assert.Equal(t, []model.HiddenPortEntry{
		{Start: 8000, End: 8001, Protocol: model.ProtocolTCP},
		{Start: 8003, End: 8005, Protocol: model.ProtocolTCP},
		{Start: 8000, End: 8005, Protocol: model.ProtocolUDP},
	}, entries)
}

// TestStore_BatchRejectsInvalidAtomically verifies all-or-nothing batch
// validation: one out-of-range port rejects the entire batch, the error
// lists every offending value, and the store is left unchanged.
func TestStore_BatchRejectsInvalidAtomically(t *testing.T) {
	store := newTestStore(t)

	_, err := store.HideBatch([]int{8080, 70000, 0})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidPort))

	var appErr *model.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []int{70000, 0}, appErr.InvalidPorts)

	// The valid port of the batch must not have been applied.
	assert.Empty(t, store.List())
	assert.False(t, store.Covers(8080, model.ProtocolTCP))
}

// TestStore_BatchEquivalentToSingles verifies that a batch produces the
// same committed set as the individual operations applied in any order.
func TestStore_BatchEquivalentToSingles(t *testing.T) {
	batch := newTestStore(t)
	_, err := batch.HideBatch([]int{10, 12, 11, 3000}, model.ProtocolTCP)
	require.NoError(t, err)

	singles := newTestStore(t)
	for _, port := range []int{3000, 11, 10, 12} {
		_, err := singles.Hide(port, model.ProtocolTCP)
		require.NoError(t, err)
	}

	assert.Equal(t, batch.List(), singles.List())
}

// TestStore_PersistsAcrossReopen verifies that a second store on the
// same path sees the committed state.
func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden_ports.json")

	first, err := NewStore(path)
	require.NoError(t, err)
	_, err = first.HideBatch([]int{9000, 9001}, model.ProtocolTCP)
	require.NoError(t, err)

	second, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, []model.HiddenPortEntry{
		{Start: 9000, End: 9001, Protocol: model.ProtocolTCP},
	}, second.List())
}

// TestStore_LegacyFormat verifies that the old bare-array file format
// is upgraded to range entries on both protocols.
func TestStore_LegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden_ports.json")
	require.NoError(t, os.WriteFile(path, []byte("[8080, 443]"), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)

	assert.Equal(t, []model.HiddenPortEntry{
		{Start: 443, End: 443, Protocol: model.ProtocolTCP},
		{Start: 8080, End: 8080, Protocol: model.ProtocolTCP},
		{Start: 443, End: 443, Protocol: model.ProtocolUDP},
		{Start: 8080, End: 8080, Protocol: model.ProtocolUDP},
	}, store.List())
}

// TestStore_CorruptFile verifies that an unparsable state file refuses
// to open rather than silently discarding operator state.
func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden_ports.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindPersistence))
}

// TestStore_PersistFailureRollsBack verifies the write-then-commit
// discipline: when the state file cannot be replaced, the mutation
// reports a persistence error and the in-memory set is unchanged.
func TestStore_PersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hidden_ports.json")

	store, err := NewStore(path)
	require.NoError(t, err)

	// A directory at the target path makes the atomic rename fail.
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err = store.Hide(8080)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindPersistence))
	assert.Empty(t, store.List())
	assert.False(t, store.Covers(8080, model.ProtocolTCP))
}
