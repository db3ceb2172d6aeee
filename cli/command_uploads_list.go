package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/remote"
)

var (
	uploadsCommands    = app.Command("uploads", "Commands to inspect upload sessions.")
	uploadsListCommand = uploadsCommands.Command("list", "List in-progress upload sessions.")
)

func init() {
	uploadsListCommand.Action(runUploadsList)
}

func runUploadsList(_ *kingpin.ParseContext) error {
	ctx, cancel := rootContext()
	defer cancel()

	cache, err := openCache()
	if err != nil {
		return errors.Wrap(err, "unable to open cache database")
	}
	defer cache.Close() //nolint:errcheck

	sessions, err := cache.ListUploads(ctx)
	if err != nil {
		return errors.Wrap(err, "error listing upload sessions")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTARGET\tDECLARED\tBLOCKS\tLAST ACTIVITY")

	for i := range sessions {
		u := &sessions[i]

		blocks, berr := cache.ListUploadBlocks(ctx, u.ID)
		if berr != nil {
			return errors.Wrap(berr, "error listing upload blocks")
		}

		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\n",
			u.ID,
			remote.BlobResource(u.ContainerName, u.BlobName),
			u.DeclaredLength,
			len(blocks),
			u.LastActivityAt)
	}

	return errors.Wrap(tw.Flush(), "error flushing output")
}
