package spool_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobmirror/blobmirror/internal/spool"
)

func TestToTempFileRoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100000)

	f, err := spool.ToTempFile(bytes.NewReader(content))
	require.NoError(t, err)

	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// the file supports re-reading from the start.
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got, err = io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestToTempFileEmpty(t *testing.T) {
	f, err := spool.ToTempFile(strings.NewReader(""))
	require.NoError(t, err)

	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Empty(t, got)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestToTempFileReadFailure(t *testing.T) {
	_, err := spool.ToTempFile(failingReader{})
	require.Error(t, err)
}
