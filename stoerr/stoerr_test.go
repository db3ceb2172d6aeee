package stoerr_test

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/blobmirror/blobmirror/stoerr"
)

func TestKindAndStatusCode(t *testing.T) {
	cases := []struct {
		err      error
		wantKind stoerr.Kind
		wantCode int
	}{
		{stoerr.NotFound("docs"), stoerr.KindNotFound, http.StatusNotFound},
		{stoerr.AlreadyExists("docs"), stoerr.KindAlreadyExists, http.StatusConflict},
		{stoerr.InvalidArgument("docs", "bad name"), stoerr.KindInvalidArgument, http.StatusBadRequest},
		{stoerr.RangeNotSatisfiable("docs/a.txt"), stoerr.KindRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable},
		{stoerr.RemoteUnavailable("docs", 0, nil), stoerr.KindRemoteUnavailable, http.StatusServiceUnavailable},
		{stoerr.RemoteUnavailable("docs", http.StatusBadGateway, nil), stoerr.KindRemoteUnavailable, http.StatusBadGateway},
		{errors.New("plain"), stoerr.KindUnknown, http.StatusInternalServerError},
		{nil, stoerr.KindUnknown, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		require.Equal(t, tc.wantKind, stoerr.KindOf(tc.err), "err %v", tc.err)
		require.Equal(t, tc.wantCode, stoerr.StatusCode(tc.err), "err %v", tc.err)
		require.True(t, stoerr.Is(tc.err, tc.wantKind), "err %v", tc.err)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(stoerr.NotFound("docs/a.txt"), "error downloading blob")

	require.True(t, stoerr.Is(err, stoerr.KindNotFound))
	require.Equal(t, http.StatusNotFound, stoerr.StatusCode(err))
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "docs/a.txt: not found", stoerr.NotFound("docs/a.txt").Error())
	require.Equal(t, "docs: bad name", stoerr.InvalidArgument("docs", "bad name").Error())
	require.Equal(t, "already exists", stoerr.AlreadyExists("").Error())
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := stoerr.RemoteUnavailable("docs", 0, cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")
}
