package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

type createUploadRequest struct {
	Container       string            `json:"container"`
	BlobName        string            `json:"blobName"`
	DeclaredLength  int64             `json:"declaredLength"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	ContentLanguage string            `json:"contentLanguage,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

type createUploadResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleUploadCreate(w http.ResponseWriter, r *http.Request) {
	var req createUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := s.uploads.CreateSession(r.Context(), req.Container, req.BlobName, req.DeclaredLength, remote.CommitOptions{
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

	writeJSON(w, http.StatusCreated, createUploadResponse{SessionID: u.ID})
}

func (s *Server) handleUploadStageBlock(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)

	if r.ContentLength < 0 {
		writeError(w, stoerr.InvalidArgument(v["blockID"], "content length is required"))

		return
	}

	// the body streams through to the remote store; it is never buffered
	// here.
	block, err := s.uploads.StageBlock(r.Context(), v["id"], v["blockID"], r.Body, r.ContentLength)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"blockId":    block.BlockID,
		"size":       block.Size,
		"contentMd5": block.ContentMD5,
	})
}

type commitUploadRequest struct {
	BlockIDs []string `json:"blockIds"`
}

func (s *Server) handleUploadCommit(w http.ResponseWriter, r *http.Request) {
	var req commitUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := s.uploads.Commit(r.Context(), mux.Vars(r)["id"], req.BlockIDs)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, toBlobResponse(b))
}

func (s *Server) handleUploadCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.uploads.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.uploads.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, status)
}
