package cli

import (
	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/reconcile"
)

var reconcileOnceCommand = reconcileCommands.Command("once", "Run a single reconciliation pass and exit.")

func init() {
	reconcileOnceCommand.Action(runReconcileOnce)
}

func runReconcileOnce(_ *kingpin.ParseContext) error {
	ctx, cancel := rootContext()
	defer cancel()

	rs, err := openRemoteStore(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to open remote store")
	}

	cache, err := openCache()
	if err != nil {
		return errors.Wrap(err, "unable to open cache database")
	}
	defer cache.Close() //nolint:errcheck

	if err := reconcile.NewEngine(rs, cache).Run(ctx); err != nil {
		return errors.Wrap(err, "reconciliation failed")
	}

	log(ctx).Infof("reconciliation complete")

	return nil
}
