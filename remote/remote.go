// Package remote defines the contract for the authoritative object store
// holding real container and blob data. Implementations translate their
// provider's failures into the stoerr taxonomy; callers never see raw
// provider errors.
package remote

import (
	"context"
	"io"
	"time"
)

// ContainerInfo describes a container as reported by the remote store.
type ContainerInfo struct {
	Name                   string
	ETag                   string
	LastModified           time.Time
	DefaultEncryptionScope string
	PublicAccess           string
	HasLegalHold           bool
	HasImmutabilityPolicy  bool
	Metadata               map[string]string
}

// BlobInfo describes a blob as reported by the remote store.
type BlobInfo struct {
	Container              string
	Name                   string
	ETag                   string
	BlobType               string
	ContentType            string
	ContentEncoding        string
	ContentLanguage        string
	ContentLength          int64
	CreatedAt              time.Time
	LastModified           time.Time
	ExpiresAt              time.Time
	LastAccessedAt         time.Time
	LegalHold              bool
	RemainingRetentionDays int32
	Metadata               map[string]string
	Tags                   map[string]string
}

// ContainerOptions carries the mutable properties of a container.
type ContainerOptions struct {
	Metadata     map[string]string
	PublicAccess string
}

// BlobOptions carries the mutable properties of a blob.
type BlobOptions struct {
	ContentType     string
	ContentEncoding string
	ContentLanguage string
	Metadata        map[string]string
	Tags            map[string]string
}

// CommitOptions carries the properties applied when committing a block list
// into a blob.
type CommitOptions struct {
	ContentType     string
	ContentEncoding string
	ContentLanguage string
	Metadata        map[string]string
	Tags            map[string]string
}

// Range selects a byte range of a blob's content.
type Range struct {
	Offset int64
	// Length of zero means "to the end of the blob".
	Length int64
}

// Download is an open streaming read of blob content. The caller owns Body
// and must close it.
type Download struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentRange  string
	ContentType   string
	Status        int
}

// Store is the client contract for the remote object store.
//
// All calls accept a context that aborts the in-flight network operation when
// cancelled. DeleteContainer and DeleteBlob are idempotent: deleting an
// entity that does not exist is not an error.
type Store interface {
	CreateContainer(ctx context.Context, name string, opts ContainerOptions) (ContainerInfo, error)
	GetContainer(ctx context.Context, name string) (ContainerInfo, error)
	ListContainers(ctx context.Context, callback func(ContainerInfo) error) error
	UpdateContainer(ctx context.Context, name string, opts ContainerOptions) (ContainerInfo, error)
	DeleteContainer(ctx context.Context, name string) error

	GetBlob(ctx context.Context, container, name string) (BlobInfo, error)
	ListBlobs(ctx context.Context, container string, callback func(BlobInfo) error) error
	UpdateBlob(ctx context.Context, container, name string, opts BlobOptions) (BlobInfo, error)
	DeleteBlob(ctx context.Context, container, name string) error
	DownloadBlob(ctx context.Context, container, name string, rng *Range) (*Download, error)

	StageBlock(ctx context.Context, container, name, blockID string, content io.Reader, length int64) error
	CommitBlockList(ctx context.Context, container, name string, blockIDs []string, opts CommitOptions) (BlobInfo, error)

	// DisplayName returns a human-readable name of the store for logs.
	DisplayName() string
}

// BlobResource formats a blob reference for error reporting.
func BlobResource(container, name string) string {
	return container + "/" + name
}
