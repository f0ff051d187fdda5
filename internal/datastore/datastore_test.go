package datastore

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
)

// setupTestStore creates a SQLiteStore backed by a temp-dir database.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testDetection(userID int) (*Detection, []BoundingBox) {
	det := &Detection{
		UserID:        userID,
		ServerID:      uuid.NewString(),
		ImageURI:      "/data/media/capture.png",
		Timestamp:     1700000000000,
		DetectionDate: 1700000000000,
		UpdatedAt:     1700000000000,
	}
	boxes := []BoundingBox{
		{X1: 0.1, Y1: 0.1, X2: 0.4, Y2: 0.5, CX: 0.25, CY: 0.3, W: 0.3, H: 0.4, Cnf: 0.91, Cls: 2, ClsName: "aphid"},
		{X1: 0.5, Y1: 0.6, X2: 0.7, Y2: 0.9, CX: 0.6, CY: 0.75, W: 0.2, H: 0.3, Cnf: 0.72, Cls: 5, ClsName: "whitefly"},
	}
	return det, boxes
}

func TestSave_RoundTrip(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))

	got, err := store.GetDetectionsByUser(1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, det.ServerID, got[0].ServerID)
	require.Len(t, got[0].Boxes, 2)
	assert.Equal(t, "aphid", got[0].Boxes[0].ClsName)
	assert.InDelta(t, 0.91, got[0].Boxes[0].Cnf, 0.0001)
	assert.Equal(t, "whitefly", got[0].Boxes[1].ClsName)
}

func TestSave_IdempotentOnServerID(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))

	// Saving again with the same serverId replaces, never duplicates.
	replacement := &Detection{
		UserID:        1,
		ServerID:      det.ServerID,
		ImageURI:      "/data/media/other.png",
		Timestamp:     det.Timestamp,
		DetectionDate: det.DetectionDate,
	}
	require.NoError(t, store.Save(replacement, []BoundingBox{
		{ClsName: "thrips", Cls: 9, Cnf: 0.5},
	}))

	got, err := store.GetDetectionsByUser(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/data/media/other.png", got[0].ImageURI)
	require.Len(t, got[0].Boxes, 1)
	assert.Equal(t, "thrips", got[0].Boxes[0].ClsName)
}

func TestSave_RequiresServerID(t *testing.T) {
	store := setupTestStore(t)

	err := store.Save(&Detection{UserID: 1}, nil)
	require.Error(t, err)
}

func TestSoftDelete_HidesFromQueries(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))
	require.NoError(t, store.SoftDelete(det.ID))

	got, err := store.GetDetectionsByUser(1)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.GetDetection(det.ID)
	require.Error(t, err)

	// The row is still in the store, flagged for the delete sync phase.
	ids, err := store.SoftDeletedServerIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []string{det.ServerID}, ids)
}

func TestSoftDeleteByPestName(t *testing.T) {
	store := setupTestStore(t)

	aphids, aphidBoxes := testDetection(1)
	require.NoError(t, store.Save(aphids, aphidBoxes))

	other := &Detection{UserID: 1, ServerID: uuid.NewString(), DetectionDate: 1}
	require.NoError(t, store.Save(other, []BoundingBox{{ClsName: "leaf miner"}}))

	require.NoError(t, store.SoftDeleteByPestName(1, "aphid"))

	got, err := store.GetDetectionsByUser(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ServerID, got[0].ServerID)
}

func TestDeleteByServerIDs_CascadesToBoxes(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))
	require.NoError(t, store.DeleteByServerIDs([]string{det.ServerID}))

	got, err := store.GetDetectionsByUser(1)
	require.NoError(t, err)
	assert.Empty(t, got)

	var orphanCount int64
	require.NoError(t, store.DB.Model(&BoundingBox{}).Count(&orphanCount).Error)
	assert.Zero(t, orphanCount)
}

func TestDeleteByServerIDs_EmptyIsNoop(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.DeleteByServerIDs(nil))
}

func TestServerIDsForUser_ExcludesDeleted(t *testing.T) {
	store := setupTestStore(t)

	kept, keptBoxes := testDetection(1)
	require.NoError(t, store.Save(kept, keptBoxes))

	deleted, deletedBoxes := testDetection(1)
	require.NoError(t, store.Save(deleted, deletedBoxes))
	require.NoError(t, store.SoftDelete(deleted.ID))

	otherUser, otherBoxes := testDetection(2)
	require.NoError(t, store.Save(otherUser, otherBoxes))

	ids, err := store.ServerIDsForUser(1)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ServerID}, ids)
}

func TestNotes(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))

	require.NoError(t, store.SetNote(det.ID, "spotted on tomatoes", 1700000001000))

	got, err := store.GetDetection(det.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Note)
	assert.Equal(t, "spotted on tomatoes", *got.Note)
	assert.Equal(t, int64(1700000001000), got.UpdatedAt)

	notes, err := store.NotesForSync(1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, det.ServerID, notes[0].ServerID)
	require.NotNil(t, notes[0].Note)
	assert.Equal(t, "spotted on tomatoes", *notes[0].Note)

	require.NoError(t, store.ClearNote(det.ID))
	got, err = store.GetDetection(det.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Note)
}

func TestUpdateNoteByServerID(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))

	require.NoError(t, store.UpdateNoteByServerID(det.ServerID, "merged from server", 1700000002000))

	got, err := store.GetDetection(det.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Note)
	assert.Equal(t, "merged from server", *got.Note)
	assert.Equal(t, int64(1700000002000), got.UpdatedAt)
}

func TestUpdateSyncStatus(t *testing.T) {
	store := setupTestStore(t)

	det, boxes := testDetection(1)
	require.NoError(t, store.Save(det, boxes))
	require.NoError(t, store.UpdateSyncStatus(det.ID, true))

	got, err := store.GetDetection(det.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
}

func TestDetectionsByServerIDs(t *testing.T) {
	store := setupTestStore(t)

	a, aBoxes := testDetection(1)
	require.NoError(t, store.Save(a, aBoxes))
	b, bBoxes := testDetection(1)
	require.NoError(t, store.Save(b, bBoxes))

	got, err := store.DetectionsByServerIDs([]string{b.ServerID}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ServerID, got[0].ServerID)
	assert.Len(t, got[0].Boxes, 2)
}
