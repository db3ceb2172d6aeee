package uploads_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/internal/remotetesting"
	"github.com/blobmirror/blobmirror/internal/testlogging"
	"github.com/blobmirror/blobmirror/mirror"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
	"github.com/blobmirror/blobmirror/uploads"
)

var baseTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

// block ids used throughout; standard base64 of short byte strings.
const (
	blockA = "AAAA" // decodes to 3 bytes
	blockB = "AAAB"
)

func newTestEngine(t *testing.T) (*uploads.Engine, *remotetesting.MapStore, *cachedb.DB) {
	t.Helper()

	db, err := cachedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	ms := remotetesting.NewMapStore(func() time.Time { return baseTime })
	repo := mirror.NewRepository(ms, db)

	return uploads.NewEngine(ms, db, repo), ms, db
}

func mustCreateContainer(ctx context.Context, t *testing.T, db *cachedb.DB, name string) {
	t.Helper()
	require.NoError(t, db.UpsertContainer(ctx, &cachedb.Container{Name: name}))
}

func TestUploadLifecycle(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 10, remote.CommitOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("hell"), 4)
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockB, strings.NewReader("o worl"), 6)
	require.NoError(t, err)

	st, err := eng.GetStatus(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, st.UploadedLength)
	require.InDelta(t, 100.0, st.Progress, 0.01)
	require.Equal(t, []string{blockA, blockB}, st.BlockIDs)

	blob, err := eng.Commit(ctx, u.ID, []string{blockA, blockB})
	require.NoError(t, err)
	require.EqualValues(t, 10, blob.ContentLength)
	require.Equal(t, "text/plain", blob.ContentType)

	// the remote holds the assembled content and no leftover staged blocks.
	dl, err := ms.DownloadBlob(ctx, "docs", "a.txt", nil)
	require.NoError(t, err)

	defer dl.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dl.Body)
	require.NoError(t, err)
	require.Equal(t, "hello worl", buf.String())
	require.Zero(t, ms.StagedBlockCount("docs", "a.txt"))

	// the session is gone.
	_, err = eng.GetStatus(ctx, u.ID)
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))

	// aggregates reflect the committed blob.
	c, err := db.GetContainer(ctx, "docs")
	require.NoError(t, err)
	require.EqualValues(t, 1, c.BlobCount)
	require.EqualValues(t, 10, c.TotalSize)
}

func TestCreateSessionUnknownContainer(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, _, _ := newTestEngine(t)

	_, err := eng.CreateSession(ctx, "missing", "a.txt", 10, remote.CommitOptions{})
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
}

func TestCreateSessionExistingBlob(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, _, db := newTestEngine(t)

	mustCreateContainer(ctx, t, db, "docs")
	require.NoError(t, db.UpsertBlob(ctx, &cachedb.Blob{ContainerName: "docs", Name: "a.txt"}))

	_, err := eng.CreateSession(ctx, "docs", "a.txt", 10, remote.CommitOptions{})
	require.True(t, stoerr.Is(err, stoerr.KindAlreadyExists))
}

func TestCreateSessionDeclaredLengthBounds(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, _, db := newTestEngine(t)

	mustCreateContainer(ctx, t, db, "docs")

	for _, length := range []int64{0, -1, uploads.MaxDeclaredLength + 1} {
		_, err := eng.CreateSession(ctx, "docs", "a.txt", length, remote.CommitOptions{})
		require.True(t, stoerr.Is(err, stoerr.KindInvalidArgument), "length %v", length)
	}

	// boundary values are accepted.
	_, err := eng.CreateSession(ctx, "docs", "a.txt", uploads.MinDeclaredLength, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.CreateSession(ctx, "docs", "b.txt", uploads.MaxDeclaredLength, remote.CommitOptions{})
	require.NoError(t, err)
}

func TestValidateBlockID(t *testing.T) {
	require.NoError(t, uploads.ValidateBlockID(blockA))
	require.NoError(t, uploads.ValidateBlockID(base64OfLength(t, 64)))

	cases := []struct {
		blockID string
		desc    string
	}{
		{"", "empty"},
		{"not base64!", "invalid base64"},
		{"AAA", "truncated base64"},
		{base64OfLength(t, 65), "decodes beyond limit"},
	}

	for _, tc := range cases {
		err := uploads.ValidateBlockID(tc.blockID)
		require.True(t, stoerr.Is(err, stoerr.KindInvalidArgument), tc.desc)
	}
}

func TestStageBlockUnknownSession(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, _, _ := newTestEngine(t)

	_, err := eng.StageBlock(ctx, "no-such-session", blockA, strings.NewReader("x"), 1)
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
}

func TestStageBlockInvalidIDMakesNoRemoteCall(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 10, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, "!!!", strings.NewReader("x"), 1)
	require.True(t, stoerr.Is(err, stoerr.KindInvalidArgument))
	require.Zero(t, ms.StagedBlockCount("docs", "a.txt"))
}

func TestStageBlockComputesMD5(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 5, remote.CommitOptions{})
	require.NoError(t, err)

	b, err := eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("hello"), 5)
	require.NoError(t, err)

	// md5("hello")
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", b.ContentMD5)
}

func TestCommitMissingBlocksFailsBeforeRemoteCall(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 10, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("hell"), 4)
	require.NoError(t, err)

	_, err = eng.Commit(ctx, u.ID, []string{blockA, blockB})
	require.True(t, stoerr.Is(err, stoerr.KindInvalidArgument))
	require.Contains(t, err.Error(), blockB)

	// the session survives a failed commit.
	_, err = eng.GetStatus(ctx, u.ID)
	require.NoError(t, err)

	// and the blob was never created.
	_, err = ms.GetBlob(ctx, "docs", "a.txt")
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
}

func TestCommitEmptyBlockList(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "empty.txt", 10, remote.CommitOptions{})
	require.NoError(t, err)

	blob, err := eng.Commit(ctx, u.ID, nil)
	require.NoError(t, err)
	require.Zero(t, blob.ContentLength)

	bi, err := ms.GetBlob(ctx, "docs", "empty.txt")
	require.NoError(t, err)
	require.Zero(t, bi.ContentLength)
}

func TestCommitAppliesDefaults(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.bin", 1, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("x"), 1)
	require.NoError(t, err)

	blob, err := eng.Commit(ctx, u.ID, []string{blockA})
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", blob.ContentType)
	require.Equal(t, "en-US", blob.ContentLanguage)
	require.Empty(t, blob.ContentEncoding)
}

func TestReStageOverwritesBlock(t *testing.T) {
	ctx := testlogging.Context(t)
	eng, ms, db := newTestEngine(t)

	_, err := ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 5, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("old"), 3)
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("newer"), 5)
	require.NoError(t, err)

	st, err := eng.GetStatus(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{blockA}, st.BlockIDs)
	require.EqualValues(t, 5, st.UploadedLength)

	blob, err := eng.Commit(ctx, u.ID, []string{blockA})
	require.NoError(t, err)
	require.EqualValues(t, 5, blob.ContentLength)

	dl, err := ms.DownloadBlob(ctx, "docs", "a.txt", nil)
	require.NoError(t, err)

	defer dl.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dl.Body)
	require.NoError(t, err)
	require.Equal(t, "newer", buf.String())
}

func TestCancelIsIdempotentAndMakesNoRemoteCall(t *testing.T) {
	ctx := testlogging.Context(t)

	db, err := cachedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	defer db.Close()

	ms := remotetesting.NewMapStore(func() time.Time { return baseTime })

	// a store that fails every call; Cancel must never touch it.
	faulty := remotetesting.NewFaulty(ms)

	repo := mirror.NewRepository(faulty, db)
	eng := uploads.NewEngine(faulty, db, repo)

	_, err = ms.CreateContainer(ctx, "docs", remote.ContainerOptions{})
	require.NoError(t, err)
	mustCreateContainer(ctx, t, db, "docs")

	u, err := eng.CreateSession(ctx, "docs", "a.txt", 4, remote.CommitOptions{})
	require.NoError(t, err)

	_, err = eng.StageBlock(ctx, u.ID, blockA, strings.NewReader("data"), 4)
	require.NoError(t, err)

	faulty.AddFault("DeleteBlob", stoerr.RemoteUnavailable("docs/a.txt", 0, nil))

	require.NoError(t, eng.Cancel(ctx, u.ID))

	_, err = eng.GetStatus(ctx, u.ID)
	require.True(t, stoerr.Is(err, stoerr.KindNotFound))

	// cancelling again, or cancelling an unknown session, succeeds.
	require.NoError(t, eng.Cancel(ctx, u.ID))
	require.NoError(t, eng.Cancel(ctx, "never-existed"))
}

func base64OfLength(t *testing.T, decodedLen int) string {
	t.Helper()

	return base64.StdEncoding.EncodeToString(make([]byte, decodedLen))
}
