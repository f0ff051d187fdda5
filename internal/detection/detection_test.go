package detection

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/datastore"
	"github.com/bedjamahdi/scanpest-go/internal/session"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	sess := session.New()
	sess.Set(1, "test-token")

	return NewService(store, sess)
}

// saveAt saves a detection with a forced clock so ordering is known.
func saveAt(t *testing.T, svc *Service, millis int64, boxes ...datastore.BoundingBox) *datastore.Detection {
	t.Helper()
	svc.now = func() time.Time { return time.UnixMilli(millis) }
	det, err := svc.Save(t.Context(), "/no/such/image.png", boxes)
	require.NoError(t, err)
	return det
}

func TestSave_GeneratesServerID(t *testing.T) {
	svc := setupService(t)

	first := saveAt(t, svc, 1000, datastore.BoundingBox{ClsName: "aphid"})
	second := saveAt(t, svc, 2000, datastore.BoundingBox{ClsName: "aphid"})

	assert.NotEmpty(t, first.ServerID)
	assert.NotEmpty(t, second.ServerID)
	assert.NotEqual(t, first.ServerID, second.ServerID)
	assert.Equal(t, int64(1000), first.DetectionDate)
	assert.False(t, first.IsSynced)
}

func TestSave_UnreadableImageIsNotFatal(t *testing.T) {
	svc := setupService(t)

	det, err := svc.Save(t.Context(), "/definitely/missing.png", nil)
	require.NoError(t, err)

	got, err := svc.Get(t.Context(), det.ID)
	require.NoError(t, err)
	assert.Equal(t, "/definitely/missing.png", got.ImageURI)
}

func TestSave_RequiresSession(t *testing.T) {
	svc := setupService(t)
	svc.session.Clear()

	_, err := svc.Save(t.Context(), "/img.png", nil)
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestQuerySorted(t *testing.T) {
	svc := setupService(t)

	oldest := saveAt(t, svc, 1000)
	newest := saveAt(t, svc, 3000)
	middle := saveAt(t, svc, 2000)

	desc, err := svc.QuerySorted(t.Context(), true)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, newest.ServerID, desc[0].ServerID)
	assert.Equal(t, middle.ServerID, desc[1].ServerID)
	assert.Equal(t, oldest.ServerID, desc[2].ServerID)

	asc, err := svc.QuerySorted(t.Context(), false)
	require.NoError(t, err)
	assert.Equal(t, oldest.ServerID, asc[0].ServerID)
}

func TestQueryByPestName(t *testing.T) {
	svc := setupService(t)

	aphids := saveAt(t, svc, 1000,
		datastore.BoundingBox{ClsName: "aphid"},
		datastore.BoundingBox{ClsName: "whitefly"})
	saveAt(t, svc, 2000, datastore.BoundingBox{ClsName: "thrips"})

	got, err := svc.QueryByPestName(t.Context(), "aphid", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, aphids.ServerID, got[0].ServerID)

	none, err := svc.QueryByPestName(t.Context(), "locust", true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecent_CapsAtLimit(t *testing.T) {
	svc := setupService(t)

	for i := int64(1); i <= 5; i++ {
		saveAt(t, svc, i*1000)
	}

	got, err := svc.Recent(t.Context(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(5000), got[0].DetectionDate)
}

func TestSoftDeleteByPestName_HidesMatches(t *testing.T) {
	svc := setupService(t)

	saveAt(t, svc, 1000, datastore.BoundingBox{ClsName: "aphid"})
	kept := saveAt(t, svc, 2000, datastore.BoundingBox{ClsName: "thrips"})

	require.NoError(t, svc.SoftDeleteByPestName(t.Context(), "aphid"))

	got, err := svc.QuerySorted(t.Context(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, kept.ServerID, got[0].ServerID)
}

func TestSoftDeleteAll(t *testing.T) {
	svc := setupService(t)

	saveAt(t, svc, 1000)
	saveAt(t, svc, 2000)

	require.NoError(t, svc.SoftDeleteAll(t.Context()))

	got, err := svc.QuerySorted(t.Context(), true)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNotes_SetAndClearBumpTimestamp(t *testing.T) {
	svc := setupService(t)

	det := saveAt(t, svc, 1000)

	svc.now = func() time.Time { return time.UnixMilli(5000) }
	require.NoError(t, svc.SetNote(t.Context(), det.ID, "under the third leaf"))

	got, err := svc.Get(t.Context(), det.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Note)
	assert.Equal(t, "under the third leaf", *got.Note)
	assert.Equal(t, int64(5000), got.UpdatedAt)

	require.NoError(t, svc.ClearNote(t.Context(), det.ID))
	got, err = svc.Get(t.Context(), det.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Note)
}
