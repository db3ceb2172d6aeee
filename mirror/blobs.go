package mirror

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/remote"
)

// GetBlob returns the cached view of the blob. It never calls the remote
// store.
func (r *Repository) GetBlob(ctx context.Context, container, name string) (*cachedb.Blob, error) {
	return r.cache.GetBlob(ctx, container, name)
}

// ListBlobs lists cached blobs of a container with prefix filtering and
// paging.
func (r *Repository) ListBlobs(ctx context.Context, container, prefix string, limit, offset int) ([]cachedb.Blob, error) {
	return r.cache.ListBlobs(ctx, container, prefix, limit, offset)
}

// UpdateBlob updates blob properties remotely and mirrors the returned truth
// into the cache. Fails with NotFound when the blob does not exist remotely.
func (r *Repository) UpdateBlob(ctx context.Context, container, name string, opts remote.BlobOptions) (*cachedb.Blob, error) {
	bi, err := r.remote.UpdateBlob(ctx, container, name, opts)
	if err != nil {
		return nil, err
	}

	if err := r.cache.UpsertBlob(ctx, cachedb.BlobFromInfo(bi)); err != nil {
		return nil, errors.Wrap(err, "blob updated remotely but cache update failed")
	}

	return r.cache.GetBlob(ctx, container, name)
}

// DeleteBlob deletes the blob remotely, removes its cache row and refreshes
// the owning container's aggregates. A remote "already gone" is not an error
// and the cache row is removed regardless.
func (r *Repository) DeleteBlob(ctx context.Context, container, name string) error {
	if err := r.remote.DeleteBlob(ctx, container, name); err != nil {
		return err
	}

	if err := r.cache.DeleteBlob(ctx, container, name); err != nil {
		return errors.Wrap(err, "blob deleted remotely but cache removal failed")
	}

	if err := r.cache.RefreshContainerAggregates(ctx, container); err != nil {
		return errors.Wrap(err, "error refreshing container aggregates")
	}

	log(ctx).Debugf("deleted blob %q", remote.BlobResource(container, name))

	return nil
}

// RecordBlob mirrors a blob reported by the remote store into the cache and
// refreshes the owning container's aggregates. Used after out-of-band
// mutations such as upload commits.
func (r *Repository) RecordBlob(ctx context.Context, bi remote.BlobInfo) (*cachedb.Blob, error) {
	if err := r.cache.UpsertBlob(ctx, cachedb.BlobFromInfo(bi)); err != nil {
		return nil, errors.Wrap(err, "error recording blob")
	}

	if err := r.cache.RefreshContainerAggregates(ctx, bi.Container); err != nil {
		return nil, errors.Wrap(err, "error refreshing container aggregates")
	}

	return r.cache.GetBlob(ctx, bi.Container, bi.Name)
}

// Download combines cached blob metadata (for headers) with a streaming
// content read from the remote store. Content is never cached. The caller
// must close the returned download.
type Download struct {
	// Blob is the cached record the headers come from.
	Blob *cachedb.Blob

	Body          io.ReadCloser
	ContentLength int64
	ContentRange  string
	ContentType   string
	Status        int
}

// Close releases the content stream.
func (d *Download) Close() error {
	//nolint:wrapcheck
	return d.Body.Close()
}

// Download opens a ranged streaming read of blob content. Fails with
// NotFound when the blob is not in the cache, and propagates the remote's
// status (e.g. RangeNotSatisfiable) without leaving a stream open.
func (r *Repository) Download(ctx context.Context, container, name string, rng *remote.Range) (*Download, error) {
	b, err := r.cache.GetBlob(ctx, container, name)
	if err != nil {
		return nil, err
	}

	dl, err := r.remote.DownloadBlob(ctx, container, name, rng)
	if err != nil {
		return nil, err
	}

	ct := dl.ContentType
	if ct == "" {
		ct = b.ContentType
	}

	return &Download{
		Blob:          b,
		Body:          dl.Body,
		ContentLength: dl.ContentLength,
		ContentRange:  dl.ContentRange,
		ContentType:   ct,
		Status:        dl.Status,
	}, nil
}
