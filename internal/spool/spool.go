// Package spool spills a stream to a private temporary file so that it can be
// re-read (seeked) without holding the content in memory. The file is
// unlinked immediately after creation, so it disappears when closed.
package spool

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/internal/iocopy"
)

// ToTempFile copies all of src into an unlinked temporary file and returns it
// positioned at offset zero. The caller must Close() the returned file.
func ToTempFile(src io.Reader) (*os.File, error) {
	f, err := os.CreateTemp("", "blobmirror-spool")
	if err != nil {
		return nil, errors.Wrap(err, "error creating temporary file")
	}

	// unlink early so the file is reclaimed even if the process dies.
	if err := os.Remove(f.Name()); err != nil {
		f.Close() //nolint:errcheck

		return nil, errors.Wrap(err, "error unlinking temporary file")
	}

	if _, err := iocopy.Copy(f, src); err != nil {
		f.Close() //nolint:errcheck

		return nil, errors.Wrap(err, "error spooling content")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close() //nolint:errcheck

		return nil, errors.Wrap(err, "error rewinding spool file")
	}

	return f, nil
}
