/*
Command-line tool serving a cache-fronted mirror of an Azure-compatible
object store.

Usage:

	$ blobmirror [<flags>] <subcommand> [<args> ...]

Use 'blobmirror help' to see more details.
*/
package main

import (
	"os"

	"github.com/blobmirror/blobmirror/cli"
)

func main() {
	app := cli.App()

	if _, err := app.Parse(os.Args[1:]); err != nil {
		app.FatalUsage("%v\n", err)
	}
}
