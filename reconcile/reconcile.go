// Package reconcile implements the full-scan synchronizer that makes the
// cache an exact mirror of the remote store's container/blob population and
// recomputes per-container aggregates.
//
// The engine holds no global state and no lock over the cache for the
// duration of a pass; concurrent write-through mutations are tolerated at
// eventual-consistency granularity and corrected by the next pass. The
// caller (normally the scheduler) is responsible for not running two passes
// concurrently.
package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/logging"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

var log = logging.Module("reconcile")

var (
	metricPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobmirror_reconcile_passes_total",
		Help: "Number of completed reconciliation passes.",
	})

	metricContainersObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobmirror_reconcile_containers_observed_total",
		Help: "Number of remote containers observed across reconciliation passes.",
	})

	metricBlobsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobmirror_reconcile_blobs_observed_total",
		Help: "Number of remote blobs observed across reconciliation passes.",
	})

	metricStaleRowsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobmirror_reconcile_stale_rows_deleted_total",
		Help: "Number of stale cache rows deleted by reconciliation.",
	})
)

// Engine performs reconciliation passes.
type Engine struct {
	remote remote.Store
	cache  *cachedb.DB
}

// NewEngine returns a reconciliation engine over the given remote store and
// cache.
func NewEngine(rs remote.Store, cache *cachedb.DB) *Engine {
	return &Engine{remote: rs, cache: cache}
}

// Run performs one reconciliation pass: upsert every remote container and
// blob into the cache, recompute aggregates, then delete cache rows for
// entities no longer present remotely. Running it twice with no intervening
// remote change produces no net change.
func (e *Engine) Run(ctx context.Context) error {
	observed := map[string]bool{}

	var containers []remote.ContainerInfo

	if err := e.remote.ListContainers(ctx, func(ci remote.ContainerInfo) error {
		containers = append(containers, ci)
		observed[ci.Name] = true

		return nil
	}); err != nil {
		return errors.Wrap(err, "error listing remote containers")
	}

	metricContainersObserved.Add(float64(len(containers)))

	var firstErr error

	for _, ci := range containers {
		if err := ctx.Err(); err != nil {
			//nolint:wrapcheck
			return err
		}

		if err := e.syncContainer(ctx, ci); err != nil {
			if stoerr.Is(err, stoerr.KindNotFound) {
				// the container disappeared between being listed and being
				// queried for blobs; treat as deleted.
				log(ctx).Debugf("container %q disappeared during reconciliation", ci.Name)
				delete(observed, ci.Name)

				if derr := e.cache.DeleteContainer(ctx, ci.Name); derr != nil {
					return errors.Wrap(derr, "error deleting disappeared container")
				}

				continue
			}

			// a fatal error aborts this container's portion only; its
			// existing cache rows are kept for the next pass.
			log(ctx).Errorf("error reconciling container %q: %v", ci.Name, err)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := e.deleteStaleContainers(ctx, observed); err != nil {
		return err
	}

	if firstErr == nil {
		metricPasses.Inc()
	}

	return firstErr
}

func (e *Engine) syncContainer(ctx context.Context, ci remote.ContainerInfo) error {
	if err := e.cache.UpsertContainer(ctx, cachedb.ContainerFromInfo(ci)); err != nil {
		return err
	}

	existing, err := e.cache.ListBlobs(ctx, ci.Name, "", 0, 0)
	if err != nil {
		return err
	}

	cachedETags := make(map[string]string, len(existing))
	for i := range existing {
		cachedETags[existing[i].Name] = existing[i].ETag
	}

	observedBlobs := map[string]bool{}

	if err := e.remote.ListBlobs(ctx, ci.Name, func(bi remote.BlobInfo) error {
		observedBlobs[bi.Name] = true

		metricBlobsObserved.Inc()

		// overwrite only when the entity tag differs; an identical etag
		// means the cached row already reflects this blob state.
		if etag, ok := cachedETags[bi.Name]; ok && etag == bi.ETag {
			return nil
		}

		return e.cache.UpsertBlob(ctx, cachedb.BlobFromInfo(bi))
	}); err != nil {
		return err
	}

	for name := range cachedETags {
		if !observedBlobs[name] {
			if err := e.cache.DeleteBlob(ctx, ci.Name, name); err != nil {
				return err
			}

			metricStaleRowsDeleted.Inc()
		}
	}

	return e.cache.RefreshContainerAggregates(ctx, ci.Name)
}

func (e *Engine) deleteStaleContainers(ctx context.Context, observed map[string]bool) error {
	names, err := e.cache.ContainerNames(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if observed[name] {
			continue
		}

		log(ctx).Debugf("deleting stale container %q from cache", name)

		if err := e.cache.DeleteContainer(ctx, name); err != nil {
			return err
		}

		metricStaleRowsDeleted.Inc()
	}

	return nil
}
