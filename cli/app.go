// Package cli implements the blobmirror command-line interface.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/logging"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/remote/azure"
	remotelogging "github.com/blobmirror/blobmirror/remote/logging"
)

var (
	app = kingpin.New("blobmirror", "Cache-fronted mirror of an Azure-compatible object store.")

	serverCommands    = app.Command("server", "Commands to control the API server.")
	reconcileCommands = app.Command("reconcile", "Commands to control cache reconciliation.")

	cachePath = app.Flag("cache-path", "Path to the cache database.").Default("blobmirror.db").Envar("BLOBMIRROR_CACHE_PATH").String()

	azStorageAccount = app.Flag("azure-storage-account", "Azure storage account name.").Envar("AZURE_STORAGE_ACCOUNT").String()
	azStorageKey     = app.Flag("azure-storage-key", "Azure storage account shared key.").Envar("AZURE_STORAGE_KEY").String()
	azSASToken       = app.Flag("azure-sas-token", "Azure shared-access-signature token.").Envar("AZURE_STORAGE_SAS_TOKEN").String()
	azStorageDomain  = app.Flag("azure-storage-domain", "Azure storage endpoint domain override.").Envar("AZURE_STORAGE_DOMAIN").String()

	logRemoteCalls = app.Flag("log-remote-calls", "Log each remote store call.").Bool()
)

var log = logging.Module("cli")

// App returns an instance of the command-line application object.
func App() *kingpin.Application {
	return app
}

// rootContext returns the application context, cancelled on SIGINT/SIGTERM,
// with the application logger attached.
func rootContext() (context.Context, context.CancelFunc) {
	ctx := logging.WithLogger(context.Background(), appLoggerForModule)

	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func openRemoteStore(ctx context.Context) (remote.Store, error) {
	st, err := azure.New(ctx, &azure.Options{
		StorageAccount: *azStorageAccount,
		StorageKey:     *azStorageKey,
		SASToken:       *azSASToken,
		StorageDomain:  *azStorageDomain,
	})
	if err != nil {
		return nil, err
	}

	if *logRemoteCalls {
		st = remotelogging.NewWrapper(st, log(ctx).Debugf, "remote: ")
	}

	return st, nil
}

func openCache() (*cachedb.DB, error) {
	return cachedb.Open(*cachePath)
}
