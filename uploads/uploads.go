// Package uploads manages the lifecycle of chunked uploads: a session is
// created, blocks are staged (possibly concurrently), and the session ends
// by committing the staged blocks into a blob or by being cancelled. Session
// and block metadata live in the cache store; block content streams straight
// through to the remote store and is never persisted locally.
package uploads

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/internal/clock"
	"github.com/blobmirror/blobmirror/logging"
	"github.com/blobmirror/blobmirror/mirror"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

var log = logging.Module("uploads")

const (
	// MinDeclaredLength and MaxDeclaredLength bound the declared total
	// content length of a session.
	MinDeclaredLength = 1
	MaxDeclaredLength = 10 << 30 // 10 GiB

	// maxDecodedBlockIDLength is the remote store's limit on decoded block
	// id length.
	maxDecodedBlockIDLength = 64

	defaultContentType     = "application/octet-stream"
	defaultContentLanguage = "en-US"
)

// Engine drives the upload session state machine.
type Engine struct {
	remote remote.Store
	cache  *cachedb.DB
	repo   *mirror.Repository
}

// NewEngine returns an upload session engine. Committed blobs are recorded
// through the given write-through repository so the cache and aggregates
// stay consistent.
func NewEngine(rs remote.Store, cache *cachedb.DB, repo *mirror.Repository) *Engine {
	return &Engine{remote: rs, cache: cache, repo: repo}
}

// Status describes the progress of an upload session.
type Status struct {
	SessionID      string   `json:"sessionId"`
	Container      string   `json:"container"`
	BlobName       string   `json:"blobName"`
	DeclaredLength int64    `json:"declaredLength"`
	UploadedLength int64    `json:"uploadedLength"`
	Progress       float64  `json:"progress"`
	BlockIDs       []string `json:"blockIds"`
	CreatedAt      string   `json:"createdAt"`
	LastActivityAt string   `json:"lastActivityAt"`
}

// CreateSession starts a new upload session targeting (container, blobName).
// The container must exist in the cache and the target blob must not; the
// declared length must be within [MinDeclaredLength, MaxDeclaredLength].
func (e *Engine) CreateSession(ctx context.Context, container, blobName string, declaredLength int64, props remote.CommitOptions) (*cachedb.Upload, error) {
	if _, err := e.cache.GetContainer(ctx, container); err != nil {
		return nil, err
	}

	if _, err := e.cache.GetBlob(ctx, container, blobName); err == nil {
		return nil, stoerr.AlreadyExists(remote.BlobResource(container, blobName))
	} else if !stoerr.Is(err, stoerr.KindNotFound) {
		return nil, err
	}

	if declaredLength < MinDeclaredLength || declaredLength > MaxDeclaredLength {
		return nil, stoerr.InvalidArgument(remote.BlobResource(container, blobName),
			fmt.Sprintf("declared length must be between %v and %v bytes", MinDeclaredLength, int64(MaxDeclaredLength)))
	}

	now := cachedb.FormatTime(clock.Now())

	u := &cachedb.Upload{
		ID:              uuid.NewString(),
		ContainerName:   container,
		BlobName:        blobName,
		DeclaredLength:  declaredLength,
		ContentType:     props.ContentType,
		ContentEncoding: props.ContentEncoding,
		ContentLanguage: props.ContentLanguage,
		MetadataJSON:    cachedb.EncodeDoc(props.Metadata),
		TagsJSON:        cachedb.EncodeDoc(props.Tags),
		CreatedAt:       now,
		LastActivityAt:  now,
	}

	if err := e.cache.CreateUpload(ctx, u); err != nil {
		return nil, err
	}

	log(ctx).Debugf("created upload session %v for %q (%v bytes declared)", u.ID, remote.BlobResource(container, blobName), declaredLength)

	return u, nil
}

// ValidateBlockID checks that the block id is valid base64 decoding to at
// most 64 bytes.
func ValidateBlockID(blockID string) error {
	if blockID == "" {
		return stoerr.InvalidArgument(blockID, "block id must not be empty")
	}

	decoded, err := base64.StdEncoding.DecodeString(blockID)
	if err != nil {
		return stoerr.InvalidArgument(blockID, "block id must be valid base64")
	}

	if len(decoded) > maxDecodedBlockIDLength {
		return stoerr.InvalidArgument(blockID, fmt.Sprintf("block id must decode to at most %v bytes", maxDecodedBlockIDLength))
	}

	return nil
}

// StageBlock streams one block of content to the remote store and records it
// against the session. Re-staging an existing block id overwrites the prior
// record. The block's MD5 is computed while the content streams through.
func (e *Engine) StageBlock(ctx context.Context, sessionID, blockID string, content io.Reader, declaredSize int64) (*cachedb.UploadBlock, error) {
	u, err := e.cache.GetUpload(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := ValidateBlockID(blockID); err != nil {
		return nil, err
	}

	h := md5.New()

	if err := e.remote.StageBlock(ctx, u.ContainerName, u.BlobName, blockID, io.TeeReader(content, h), declaredSize); err != nil {
		return nil, err
	}

	now := cachedb.FormatTime(clock.Now())

	b := &cachedb.UploadBlock{
		UploadID:   sessionID,
		BlockID:    blockID,
		Size:       declaredSize,
		ContentMD5: hex.EncodeToString(h.Sum(nil)),
		UploadedAt: now,
	}

	if err := e.cache.UpsertUploadBlock(ctx, b); err != nil {
		return nil, errors.Wrap(err, "block staged remotely but cache update failed")
	}

	if err := e.cache.TouchUpload(ctx, sessionID, now); err != nil {
		return nil, errors.Wrap(err, "error refreshing session activity")
	}

	return b, nil
}

// Commit assembles the staged blocks into the target blob in the given
// order, mirrors the resulting blob into the cache and deletes the session.
// Any block id not previously staged fails the commit with InvalidArgument
// before any remote call is made.
func (e *Engine) Commit(ctx context.Context, sessionID string, orderedBlockIDs []string) (*cachedb.Blob, error) {
	u, err := e.cache.GetUpload(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	blocks, err := e.cache.ListUploadBlocks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	staged := make(map[string]bool, len(blocks))
	for i := range blocks {
		staged[blocks[i].BlockID] = true
	}

	var missing []string

	for _, id := range orderedBlockIDs {
		if !staged[id] {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		return nil, stoerr.InvalidArgument(remote.BlobResource(u.ContainerName, u.BlobName),
			"blocks not staged: "+strings.Join(missing, ", "))
	}

	props := remote.CommitOptions{
		ContentType:     u.ContentType,
		ContentEncoding: u.ContentEncoding,
		ContentLanguage: u.ContentLanguage,
		Metadata:        u.Metadata(),
		Tags:            u.Tags(),
	}

	if props.ContentType == "" {
		props.ContentType = defaultContentType
	}

	if props.ContentLanguage == "" {
		props.ContentLanguage = defaultContentLanguage
	}

	bi, err := e.remote.CommitBlockList(ctx, u.ContainerName, u.BlobName, orderedBlockIDs, props)
	if err != nil {
		return nil, err
	}

	blob, err := e.repo.RecordBlob(ctx, bi)
	if err != nil {
		return nil, err
	}

	if err := e.cache.DeleteUpload(ctx, sessionID); err != nil {
		return nil, errors.Wrap(err, "blob committed but session cleanup failed")
	}

	log(ctx).Debugf("committed upload session %v into %q (%v blocks, %v bytes)", sessionID, remote.BlobResource(u.ContainerName, u.BlobName), len(orderedBlockIDs), blob.ContentLength)

	return blob, nil
}

// Cancel deletes the session and its staged block records. Cancelling a
// session that does not exist is a no-op. No remote call is made;
// staged-but-uncommitted blocks expire on the remote side on their own
// schedule.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	return e.cache.DeleteUpload(ctx, sessionID)
}

// GetStatus reports the session's progress from the cache.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (*Status, error) {
	u, err := e.cache.GetUpload(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	blocks, err := e.cache.ListUploadBlocks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var uploaded int64

	blockIDs := make([]string, 0, len(blocks))

	for i := range blocks {
		uploaded += blocks[i].Size
		blockIDs = append(blockIDs, blocks[i].BlockID)
	}

	var progress float64
	if u.DeclaredLength > 0 {
		progress = float64(uploaded) / float64(u.DeclaredLength) * 100 //nolint:mnd
	}

	return &Status{
		SessionID:      u.ID,
		Container:      u.ContainerName,
		BlobName:       u.BlobName,
		DeclaredLength: u.DeclaredLength,
		UploadedLength: uploaded,
		Progress:       progress,
		BlockIDs:       blockIDs,
		CreatedAt:      u.CreatedAt,
		LastActivityAt: u.LastActivityAt,
	}, nil
}
