package reconcile_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/internal/remotetesting"
	"github.com/blobmirror/blobmirror/internal/testlogging"
	"github.com/blobmirror/blobmirror/reconcile"
	"github.com/blobmirror/blobmirror/stoerr"
)

var baseTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*reconcile.Engine, *remotetesting.MapStore, *cachedb.DB) {
	t.Helper()

	db, err := cachedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	ms := remotetesting.NewMapStore(func() time.Time { return baseTime })

	return reconcile.NewEngine(ms, db), ms, db
}

func TestRunPopulatesEmptyCache(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")
	ms.PutBlob("docs", "b.txt", []byte("world!"), "text/plain")
	ms.PutBlob("media", "cat.png", make([]byte, 1024), "image/png")

	require.NoError(t, eng.Run(ctx))

	containers, err := db.ListContainers(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, containers, 2)

	docs, err := db.GetContainer(ctx, "docs")
	require.NoError(t, err)
	require.EqualValues(t, 2, docs.BlobCount)
	require.EqualValues(t, 11, docs.TotalSize)

	media, err := db.GetContainer(ctx, "media")
	require.NoError(t, err)
	require.EqualValues(t, 1, media.BlobCount)
	require.EqualValues(t, 1024, media.TotalSize)

	b, err := db.GetBlob(ctx, "docs", "a.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain", b.ContentType)
	require.EqualValues(t, 5, b.ContentLength)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")

	require.NoError(t, eng.Run(ctx))

	before := dumpCache(ctx, t, db)

	require.NoError(t, eng.Run(ctx))

	require.Equal(t, before, dumpCache(ctx, t, db))
}

func TestRunEmptyRemoteWipesCache(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, _, db := newTestEngine(t)

	// pre-populate the cache with rows the remote does not have.
	require.NoError(t, db.UpsertContainer(ctx, &cachedb.Container{Name: "ghost"}))
	require.NoError(t, db.UpsertBlob(ctx, &cachedb.Blob{ContainerName: "ghost", Name: "a.txt"}))

	require.NoError(t, eng.Run(ctx))

	containers, err := db.ListContainers(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Empty(t, containers)

	_, err = db.GetBlob(ctx, "ghost", "a.txt")
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
}

func TestRunDeletesStaleBlobs(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")
	ms.PutBlob("docs", "b.txt", []byte("world"), "text/plain")

	require.NoError(t, eng.Run(ctx))

	require.NoError(t, ms.DeleteBlob(ctx, "docs", "b.txt"))

	require.NoError(t, eng.Run(ctx))

	_, err := db.GetBlob(ctx, "docs", "b.txt")
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))

	docs, err := db.GetContainer(ctx, "docs")
	require.NoError(t, err)
	require.EqualValues(t, 1, docs.BlobCount)
	require.EqualValues(t, 5, docs.TotalSize)
}

func TestRunContainerDisappearsMidPass(t *testing.T) {
	ctx := testlogging.Context(t)

	db, err := cachedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	defer db.Close()

	ms := remotetesting.NewMapStore(func() time.Time { return baseTime })
	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")

	faulty := remotetesting.NewFaulty(ms)
	eng := reconcile.NewEngine(faulty, db)

	// first pass fills the cache.
	require.NoError(t, eng.Run(ctx))

	// the container vanishes between listing and blob enumeration.
	faulty.AddFault("ListBlobs", stoerr.NotFound("docs"))

	require.NoError(t, eng.Run(ctx))

	_, err = db.GetContainer(ctx, "docs")
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))

	_, err = db.GetBlob(ctx, "docs", "a.txt")
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
}

func TestRunFatalErrorKeepsRowsAndContinues(t *testing.T) {
	ctx := testlogging.Context(t)

	db, err := cachedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	defer db.Close()

	ms := remotetesting.NewMapStore(func() time.Time { return baseTime })
	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")
	ms.PutBlob("media", "cat.png", []byte("png"), "image/png")

	faulty := remotetesting.NewFaulty(ms)
	eng := reconcile.NewEngine(faulty, db)

	require.NoError(t, eng.Run(ctx))

	// blob enumeration of "docs" fails transiently; "media" still syncs.
	faulty.AddFault("ListBlobs", stoerr.RemoteUnavailable("docs", 0, nil))
	ms.PutBlob("media", "dog.png", []byte("png2"), "image/png")

	err = eng.Run(ctx)
	require.True(t, stoerr.Is(err, stoerr.KindRemoteUnavailable))

	// the failed container's rows survive for the next pass.
	_, err = db.GetBlob(ctx, "docs", "a.txt")
	require.NoError(t, err)

	// the healthy container was still reconciled.
	_, err = db.GetBlob(ctx, "media", "dog.png")
	require.NoError(t, err)
}

func TestRunSkipsUnchangedBlobs(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	ms.PutBlob("docs", "a.txt", []byte("hello"), "text/plain")

	require.NoError(t, eng.Run(ctx))

	// poison the cached row in a way a re-upsert would undo; since the etag
	// is unchanged, the next pass must leave the row alone.
	b, err := db.GetBlob(ctx, "docs", "a.txt")
	require.NoError(t, err)

	b.ContentLanguage = "x-sentinel"
	require.NoError(t, db.UpsertBlob(ctx, b))

	require.NoError(t, eng.Run(ctx))

	b, err = db.GetBlob(ctx, "docs", "a.txt")
	require.NoError(t, err)
	require.Equal(t, "x-sentinel", b.ContentLanguage)
}

type cacheDump struct {
	containers []cachedb.Container
	blobs      []cachedb.Blob
}

func dumpCache(ctx context.Context, t *testing.T, db *cachedb.DB) cacheDump {
	t.Helper()

	containers, err := db.ListContainers(ctx, "", 0, 0)
	require.NoError(t, err)

	var dump cacheDump

	for i := range containers {
		containers[i].Blobs = nil

		blobs, berr := db.ListBlobs(ctx, containers[i].Name, "", 0, 0)
		require.NoError(t, berr)

		dump.blobs = append(dump.blobs, blobs...)
	}

	dump.containers = containers

	return dump
}
