// Package server exposes the repository over HTTP: container and blob
// listing/CRUD served from the cache, ranged blob download, the chunked
// upload surface, and prometheus metrics. Errors map onto HTTP statuses in
// exactly one place (writeError).
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobmirror/blobmirror/internal/iocopy"
	"github.com/blobmirror/blobmirror/logging"
	"github.com/blobmirror/blobmirror/mirror"
	"github.com/blobmirror/blobmirror/stoerr"
	"github.com/blobmirror/blobmirror/uploads"
)

var log = logging.Module("server")

var metricRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "blobmirror_request_errors_total",
	Help: "Number of API requests that resulted in an error, by error kind.",
}, []string{"kind"})

// Server handles the HTTP API.
type Server struct {
	repo    *mirror.Repository
	uploads *uploads.Engine
}

// New creates a server over the given repository and upload engine.
func New(repo *mirror.Repository, up *uploads.Engine) *Server {
	return &Server{repo: repo, uploads: up}
}

// Router returns the HTTP handler serving the API.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/containers", s.handleContainerList).Methods(http.MethodGet)
	api.HandleFunc("/containers", s.handleContainerCreate).Methods(http.MethodPost)
	api.HandleFunc("/containers/{container}", s.handleContainerGet).Methods(http.MethodGet)
	api.HandleFunc("/containers/{container}", s.handleContainerUpdate).Methods(http.MethodPut)
	api.HandleFunc("/containers/{container}", s.handleContainerDelete).Methods(http.MethodDelete)

	api.HandleFunc("/containers/{container}/blobs", s.handleBlobList).Methods(http.MethodGet)
	api.HandleFunc("/containers/{container}/blobs/{blob:.+}/content", s.handleBlobDownload).Methods(http.MethodGet)
	api.HandleFunc("/containers/{container}/blobs/{blob:.+}", s.handleBlobGet).Methods(http.MethodGet)
	api.HandleFunc("/containers/{container}/blobs/{blob:.+}", s.handleBlobUpdate).Methods(http.MethodPut)
	api.HandleFunc("/containers/{container}/blobs/{blob:.+}", s.handleBlobDelete).Methods(http.MethodDelete)

	api.HandleFunc("/uploads", s.handleUploadCreate).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}", s.handleUploadStatus).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{id}", s.handleUploadCancel).Methods(http.MethodDelete)
	api.HandleFunc("/uploads/{id}/blocks/{blockID}", s.handleUploadStageBlock).Methods(http.MethodPut)
	api.HandleFunc("/uploads/{id}/commit", s.handleUploadCommit).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log(r.Context()).Debugf("%v %v", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError is the single place where taxonomy kinds become HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	kind := stoerr.KindOf(err)
	metricRequestErrors.WithLabelValues(kind.String()).Inc()

	writeJSON(w, stoerr.StatusCode(err), errorResponse{
		Error: err.Error(),
		Kind:  kind.String(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, stoerr.InvalidArgument("", "malformed request body: "+err.Error()))

		return false
	}

	return true
}

func streamContent(w http.ResponseWriter, body io.Reader) {
	if err := iocopy.JustCopy(w, body); err != nil {
		// headers are already sent; nothing to do but drop the connection.
		_ = err
	}
}
