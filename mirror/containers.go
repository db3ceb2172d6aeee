package mirror

import (
	"context"

	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/remote"
)

// CreateContainer creates the container remotely and mirrors it into the
// cache. Fails with InvalidArgument before any remote call when the name
// violates remote naming rules, and with AlreadyExists when the remote
// reports a naming conflict.
func (r *Repository) CreateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (*cachedb.Container, error) {
	if err := remote.ValidateContainerName(name); err != nil {
		return nil, err
	}

	ci, err := r.remote.CreateContainer(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	if err := r.cache.UpsertContainer(ctx, cachedb.ContainerFromInfo(ci)); err != nil {
		return nil, errors.Wrap(err, "container created remotely but cache update failed")
	}

	log(ctx).Debugf("created container %q", name)

	return r.cache.GetContainer(ctx, name)
}

// GetContainer returns the cached view of the container. It never calls the
// remote store; staleness is bounded by write-through updates and periodic
// reconciliation.
func (r *Repository) GetContainer(ctx context.Context, name string) (*cachedb.Container, error) {
	return r.cache.GetContainer(ctx, name)
}

// ListContainers lists cached containers with prefix filtering and paging.
func (r *Repository) ListContainers(ctx context.Context, prefix string, limit, offset int) ([]cachedb.Container, error) {
	return r.cache.ListContainers(ctx, prefix, limit, offset)
}

// UpdateContainer updates the container remotely and mirrors the returned
// truth into the cache. Fails with NotFound when the container does not
// exist remotely.
func (r *Repository) UpdateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (*cachedb.Container, error) {
	ci, err := r.remote.UpdateContainer(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	if err := r.cache.UpsertContainer(ctx, cachedb.ContainerFromInfo(ci)); err != nil {
		return nil, errors.Wrap(err, "container updated remotely but cache update failed")
	}

	return r.cache.GetContainer(ctx, name)
}

// DeleteContainer deletes the container remotely and removes its cache rows.
// A remote "already gone" is not an error; either way the cache is left
// without the container and its blobs.
func (r *Repository) DeleteContainer(ctx context.Context, name string) error {
	if err := r.remote.DeleteContainer(ctx, name); err != nil {
		return err
	}

	if err := r.cache.DeleteContainer(ctx, name); err != nil {
		return errors.Wrap(err, "container deleted remotely but cache removal failed")
	}

	log(ctx).Debugf("deleted container %q", name)

	return nil
}
