package cli

import (
	"context"
	"net"
	"net/http"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/hashicorp/cronexpr"
	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/internal/clock"
	"github.com/blobmirror/blobmirror/mirror"
	"github.com/blobmirror/blobmirror/reconcile"
	"github.com/blobmirror/blobmirror/server"
	"github.com/blobmirror/blobmirror/uploads"
)

var (
	serverStartCommand = serverCommands.Command("start", "Start the API server.")

	serverAddress = serverStartCommand.Flag("address", "Address to listen on.").Default(":51515").Envar("BLOBMIRROR_ADDRESS").String()

	serverReconcileSchedule = serverStartCommand.Flag("reconcile-schedule", "Cron expression controlling periodic cache reconciliation (empty to disable).").Default("*/5 * * * *").String()

	serverShutdownTimeout = serverStartCommand.Flag("shutdown-timeout", "Maximum time to wait for graceful shutdown.").Default("15s").Duration()
)

func init() {
	serverStartCommand.Action(runServerStart)
}

func runServerStart(_ *kingpin.ParseContext) error {
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

	repo := mirror.NewRepository(rs, cache)
	up := uploads.NewEngine(rs, cache, repo)
	eng := reconcile.NewEngine(rs, cache)

	if *serverReconcileSchedule != "" {
		sched, err := cronexpr.Parse(*serverReconcileSchedule)
		if err != nil {
			return errors.Wrap(err, "invalid reconcile schedule")
		}

		go runReconcileLoop(ctx, sched, eng)
	}

	srv := &http.Server{
		Addr:              *serverAddress,
		Handler:           server.New(repo, up).Router(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shctx, shcancel := context.WithTimeout(context.Background(), *serverShutdownTimeout)
		defer shcancel()

		srv.Shutdown(shctx) //nolint:errcheck
	}()

	log(ctx).Infof("serving on %v (remote %v)", *serverAddress, rs.DisplayName())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}

	return nil
}

// runReconcileLoop triggers reconciliation passes on the cron schedule until
// the context is cancelled. Passes are serialized by construction: the next
// one is not scheduled until the previous one finishes.
func runReconcileLoop(ctx context.Context, sched *cronexpr.Expression, eng *reconcile.Engine) {
	for {
		next := sched.Next(clock.Now())
		if next.IsZero() {
			return
		}

		select {
		case <-ctx.Done():
			return

		case <-time.After(clock.Until(next)):
		}

		if err := eng.Run(ctx); err != nil {
			log(ctx).Errorf("reconciliation pass failed: %v", err)
		}
	}
}
