// Package mirror implements the write-through repository fronting the remote
// store with the local cache. Every mutation goes to the remote store first
// and the matching cache rows are then reconciled from the remote's returned
// truth; every point read and listing is served from the cache alone.
package mirror

import (
	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/logging"
	"github.com/blobmirror/blobmirror/remote"
)

var log = logging.Module("mirror")

// Repository is the façade used by all mutating and point-read operations.
type Repository struct {
	remote remote.Store
	cache  *cachedb.DB
}

// NewRepository returns a write-through repository over the given remote
// store and cache.
func NewRepository(rs remote.Store, cache *cachedb.DB) *Repository {
	return &Repository{remote: rs, cache: cache}
}
