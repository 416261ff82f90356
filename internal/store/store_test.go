package store_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/store"
	"github.com/heiftools/heifconv/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(testutil.SetupTestDB(t))
}

func TestCreateAndFinishRun(t *testing.T) {
	st := newTestStore(t)

	id, err := st.CreateRun("/in", "/out", "png", 90, 4, 10, 25)
	assert.NoError(t, err)

	run, err := st.GetRun(id)
	assert.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.Equal(t, 25, run.TotalFiles)
	assert.Equal(t, "png", run.Format)
	assert.Equal(t, 4, run.Workers)
	assert.Nil(t, run.FinishedAt, "running run must not carry a finished timestamp")

	err = st.FinishRun(id, "completed", 23, 2)
	assert.NoError(t, err)

	run, err = st.GetRun(id)
	assert.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 23, run.Succeeded)
	assert.Equal(t, 2, run.Failed)
	assert.NotNil(t, run.FinishedAt)
}

func TestGetRunNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetRun(999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAddAndGetFileResults(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateRun("/in", "/out", "jpeg", 85, 2, 5, 3)
	assert.NoError(t, err)

	results := []codec.Result{
		{SourcePath: "/in/a.heic", DestPath: "/out/a.jpg", Success: true, Duration: 120 * time.Millisecond},
		{SourcePath: "/in/b.heic", DestPath: "/out/b.jpg", Success: true, Duration: 95 * time.Millisecond},
		{SourcePath: "/in/c.heic", DestPath: "/out/c.jpg", Success: false, Error: "decode c.heic: bad heif data"},
	}
	assert.NoError(t, st.AddFileResults(id, results))

	got, err := st.GetRunResults(id)
	assert.NoError(t, err)
	assert.Len(t, got, 3)

	assert.Equal(t, "/in/a.heic", got[0].SourcePath)
	assert.True(t, got[0].Success)
	assert.Equal(t, int64(120), got[0].DurationMs)

	assert.False(t, got[2].Success)
	assert.NotEmpty(t, got[2].Error, "failed result must carry the error detail")
}

func TestListRunsNewestFirst(t *testing.T) {
	st := newTestStore(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := st.CreateRun("/in", "/out", "png", 90, 1, 10, i)
		assert.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := st.ListRuns(0)
	assert.NoError(t, err)
	assert.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest run listed first")

	limited, err := st.ListRuns(1)
	assert.NoError(t, err)
	assert.Len(t, limited, 1)
}
