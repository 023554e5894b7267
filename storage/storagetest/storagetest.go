// Package storagetest is a conformance suite for implementations of the
// storage interfaces. Every backend is running it from its own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/storage"
)

// Run is running all conformance tests. newStorage has to return an empty storage on every call.
func Run(t *testing.T, newStorage func(t *testing.T) storage.Storage) {
	t.Run("Resources", func(t *testing.T) { testResources(t, newStorage(t)) })
	t.Run("LastScan", func(t *testing.T) { testLastScan(t, newStorage(t)) })
	t.Run("Intervals", func(t *testing.T) { testIntervals(t, newStorage(t)) })
	t.Run("SnapshotOrder", func(t *testing.T) { testSnapshotOrder(t, newStorage(t)) })
	t.Run("SnapshotContent", func(t *testing.T) { testSnapshotContent(t, newStorage(t)) })
	t.Run("OrphanSnapshots", func(t *testing.T) { testOrphanSnapshots(t, newStorage(t)) })
	t.Run("Now", func(t *testing.T) { testNow(t, newStorage(t)) })
}

// ts is returning a time which survives a round trip through every backend unchanged.
func ts(sec int) time.Time {
	return time.Date(2023, 5, 1, 12, 0, sec, 0, time.UTC)
}

func testResources(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	r1 := &diffdetect.Resource{Name: "site", URL: "http://site.example/", Categories: "news,tech",
		Enabled: true, HTTPAuthLogin: "user", HTTPAuthPassword: "secret"}
	r2 := &diffdetect.Resource{Name: "feed", URL: "http://site.example/rss", Type: diffdetect.TypeRSS}

	id1, err := db.AddResource(ctx, r1)
	require.NoError(t, err)
	id2, err := db.AddResource(ctx, r2)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = db.AddResource(ctx, &diffdetect.Resource{URL: r1.URL})
	assert.ErrorIs(t, err, diffdetect.ErrAlreadyExists)

	got, err := db.GetResource(ctx, id1)
	require.NoError(t, err)
	want := *r1
	want.ID = id1
	assert.Equal(t, &want, got)

	got, err = db.GetResource(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, diffdetect.TypeRSS, got.Type)
	assert.False(t, got.Enabled)

	_, err = db.GetResource(ctx, id2+100)
	assert.ErrorIs(t, err, diffdetect.ErrNotExist)

	got.Name = "renamed feed"
	got.Enabled = true
	require.NoError(t, db.UpdateResource(ctx, got))

	updated, err := db.GetResource(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "renamed feed", updated.Name)
	assert.True(t, updated.Enabled)

	assert.ErrorIs(t, db.UpdateResource(ctx, &diffdetect.Resource{ID: id2 + 100, URL: "http://other.example/"}),
		diffdetect.ErrNotExist)

	updated.URL = r1.URL
	assert.ErrorIs(t, db.UpdateResource(ctx, updated), diffdetect.ErrAlreadyExists)

	list1, err := db.ListResources(ctx)
	require.NoError(t, err)
	list2, err := db.ListResources(ctx)
	require.NoError(t, err)
	assert.Len(t, list1, 2)
	assert.Equal(t, list1, list2, "listing resources must not change them")
}

func testLastScan(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	id, err := db.AddResource(ctx, &diffdetect.Resource{URL: "http://site.example/", Enabled: true})
	require.NoError(t, err)

	last, err := db.LastScan(ctx, id)
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "never scanned resource has zero last scan, got %v", last)

	require.NoError(t, db.UpdateLastScan(ctx, id, ts(10)))

	last, err = db.LastScan(ctx, id)
	require.NoError(t, err)
	assert.True(t, ts(10).Equal(last), "want %v, got %v", ts(10), last)

	r, err := db.GetResource(ctx, id)
	require.NoError(t, err)
	assert.True(t, ts(10).Equal(r.LastScan), "want %v, got %v", ts(10), r.LastScan)

	// updating the configuration keeps the last scan
	r.LastScan = time.Time{}
	r.Name = "changed"
	require.NoError(t, db.UpdateResource(ctx, r))
	last, err = db.LastScan(ctx, id)
	require.NoError(t, err)
	assert.True(t, ts(10).Equal(last), "want %v, got %v", ts(10), last)

	assert.ErrorIs(t, db.UpdateLastScan(ctx, id+100, ts(11)), diffdetect.ErrNotExist)
	_, err = db.LastScan(ctx, id+100)
	assert.ErrorIs(t, err, diffdetect.ErrNotExist)
}

func testIntervals(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	hourly := &diffdetect.Interval{Name: "hourly", Period: time.Hour}
	daily := &diffdetect.Interval{Name: "daily", Period: 24 * time.Hour}

	id1, err := db.AddInterval(ctx, hourly)
	require.NoError(t, err)
	id2, err := db.AddInterval(ctx, daily)
	require.NoError(t, err)

	_, err = db.AddInterval(ctx, &diffdetect.Interval{Name: "hourly", Period: time.Minute})
	assert.ErrorIs(t, err, diffdetect.ErrAlreadyExists)

	got, err := db.GetInterval(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, &diffdetect.Interval{ID: id2, Name: "daily", Period: 24 * time.Hour}, got)

	_, err = db.GetInterval(ctx, id2+100)
	assert.ErrorIs(t, err, diffdetect.ErrNotExist)

	list, err := db.ListIntervals(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*diffdetect.Interval{
		{ID: id1, Name: "hourly", Period: time.Hour},
		{ID: id2, Name: "daily", Period: 24 * time.Hour},
	}, list)
}

func testSnapshotOrder(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	add := func(resourceID int64, created time.Time) int64 {
		id, err := db.AddSnapshot(ctx, &diffdetect.Snapshot{ResourceID: resourceID, Content: []byte("x"),
			CreateDate: created, CreateUser: "test"})
		require.NoError(t, err)
		return id
	}

	// inserted out of order
	t2 := add(1, ts(2))
	t1 := add(1, ts(1))
	t3 := add(1, ts(3))
	add(2, ts(4))

	ids := func() []int64 {
		list, err := db.ListSnapshots(ctx, 1)
		require.NoError(t, err)
		ids := make([]int64, len(list))
		for i, s := range list {
			ids[i] = s.ID
		}
		return ids
	}

	assert.Equal(t, []int64{t3, t2, t1}, ids())
	assert.Equal(t, []int64{t3, t2, t1}, ids(), "listing snapshots must be idempotent")

	// same create date is ordered by id
	t3b := add(1, ts(3))
	assert.Equal(t, []int64{t3b, t3, t2, t1}, ids())

	list, err := db.ListSnapshots(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testSnapshotContent(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	content := []byte("content1ä😎\r\n<html>")
	snap := &diffdetect.Snapshot{ResourceID: 1, Content: content, CreateDate: ts(5), CreateUser: "cron"}

	id, err := db.AddSnapshot(ctx, snap)
	require.NoError(t, err)

	// same content again is a new snapshot
	id2, err := db.AddSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	content[0] = 'X'

	got, err := db.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, int64(1), got.ResourceID)
	assert.Equal(t, "content1ä😎\r\n<html>", string(got.Content))
	assert.Equal(t, "cron", got.CreateUser)
	assert.False(t, got.Checked)
	assert.True(t, ts(5).Equal(got.CreateDate), "want %v, got %v", ts(5), got.CreateDate)

	got.Content[0] = 'Y'
	again, err := db.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "content1ä😎\r\n<html>", string(again.Content), "snapshots must be immutable")

	list, err := db.ListSnapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(len("content1ä😎\r\n<html>")), list[0].Size)
	assert.Equal(t, "cron", list[0].CreateUser)

	_, err = db.GetSnapshot(ctx, id2+100)
	assert.ErrorIs(t, err, diffdetect.ErrNotExist)
}

func testOrphanSnapshots(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	id, err := db.AddSnapshot(ctx, &diffdetect.Snapshot{ResourceID: 999, Content: []byte("orphan"), CreateDate: ts(1)})
	require.NoError(t, err)

	list, err := db.ListSnapshots(ctx, 999)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	_, err = db.GetResource(ctx, 999)
	assert.ErrorIs(t, err, diffdetect.ErrNotExist)
}

func testNow(t *testing.T, db storage.Storage) {
	now, err := db.Now(context.Background())
	require.NoError(t, err)
	assert.False(t, now.IsZero())
}
