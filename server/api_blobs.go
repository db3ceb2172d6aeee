package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

type blobResponse struct {
	Container              string            `json:"container"`
	Name                   string            `json:"name"`
	ETag                   string            `json:"etag"`
	BlobType               string            `json:"blobType,omitempty"`
	ContentType            string            `json:"contentType,omitempty"`
	ContentEncoding        string            `json:"contentEncoding,omitempty"`
	ContentLanguage        string            `json:"contentLanguage,omitempty"`
	ContentLength          int64             `json:"contentLength"`
	CreatedAt              string            `json:"createdAt,omitempty"`
	LastModified           string            `json:"lastModified,omitempty"`
	ExpiresAt              string            `json:"expiresAt,omitempty"`
	LastAccessedAt         string            `json:"lastAccessedAt,omitempty"`
	LegalHold              bool              `json:"legalHold,omitempty"`
	RemainingRetentionDays int32             `json:"remainingRetentionDays,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	Tags                   map[string]string `json:"tags,omitempty"`
}

func toBlobResponse(b *cachedb.Blob) blobResponse {
	return blobResponse{
		Container:              b.ContainerName,
		Name:                   b.Name,
		ETag:                   b.ETag,
		BlobType:               b.BlobType,
		ContentType:            b.ContentType,
		ContentEncoding:        b.ContentEncoding,
		ContentLanguage:        b.ContentLanguage,
		ContentLength:          b.ContentLength,
		CreatedAt:              b.CreatedAt,
		LastModified:           b.LastModified,
		ExpiresAt:              b.ExpiresAt,
		LastAccessedAt:         b.LastAccessedAt,
		LegalHold:              b.LegalHold,
		RemainingRetentionDays: b.RemainingRetentionDays,
		Metadata:               b.Metadata(),
		Tags:                   b.Tags(),
	}
}

func (s *Server) handleBlobList(w http.ResponseWriter, r *http.Request) {
	prefix, limit, offset := pagingParams(r)

	// a listing for an unknown container is an error, not an empty result.
	if _, err := s.repo.GetContainer(r.Context(), mux.Vars(r)["container"]); err != nil {
		writeError(w, err)

		return
	}

	blobs, err := s.repo.ListBlobs(r.Context(), mux.Vars(r)["container"], prefix, limit, offset)
	if err != nil {
		writeError(w, err)

		return
	}

	result := make([]blobResponse, 0, len(blobs))
	for i := range blobs {
		result = append(result, toBlobResponse(&blobs[i]))
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBlobGet(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)

	b, err := s.repo.GetBlob(r.Context(), v["container"], v["blob"])
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, toBlobResponse(b))
}

type updateBlobRequest struct {
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	ContentLanguage string            `json:"contentLanguage,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

func (s *Server) handleBlobUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateBlobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := mux.Vars(r)

	b, err := s.repo.UpdateBlob(r.Context(), v["container"], v["blob"], remote.BlobOptions{
		ContentType:     req.ContentType,
		ContentEncoding: req.ContentEncoding,
		ContentLanguage: req.ContentLanguage,
		Metadata:        req.Metadata,
		Tags:            req.Tags,
	})
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, toBlobResponse(b))
}

func (s *Server) handleBlobDelete(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)

	if err := s.repo.DeleteBlob(r.Context(), v["container"], v["blob"]); err != nil {
		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseRangeHeader parses a single "bytes=start-end" range. An empty header
// returns nil.
func parseRangeHeader(header string) (*remote.Range, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, stoerr.InvalidArgument(header, "unsupported range header")
	}

	start, end, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, stoerr.InvalidArgument(header, "malformed range header")
	}

	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return nil, stoerr.InvalidArgument(header, "malformed range header")
	}

	rng := &remote.Range{Offset: offset}

	if end != "" {
		last, err := strconv.ParseInt(end, 10, 64)
		if err != nil || last < offset {
			return nil, stoerr.InvalidArgument(header, "malformed range header")
		}

		rng.Length = last - offset + 1
	}

	return rng, nil
}

func (s *Server) handleBlobDownload(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)

	rng, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		writeError(w, err)

		return
	}

	dl, err := s.repo.Download(r.Context(), v["container"], v["blob"], rng)
	if err != nil {
		writeError(w, err)

		return
	}
	defer dl.Close() //nolint:errcheck

	if dl.ContentType != "" {
		w.Header().Set("Content-Type", dl.ContentType)
	}

	if dl.Blob.ETag != "" {
		w.Header().Set("ETag", dl.Blob.ETag)
	}

	if dl.ContentRange != "" {
		w.Header().Set("Content-Range", dl.ContentRange)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	w.WriteHeader(dl.Status)
	streamContent(w, dl.Body)
}
