package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/blobmirror/blobmirror/cachedb"
	"github.com/blobmirror/blobmirror/remote"
)

type containerResponse struct {
	Name                  string            `json:"name"`
	ETag                  string            `json:"etag"`
	LastModified          string            `json:"lastModified"`
	BlobCount             int64             `json:"blobCount"`
	TotalSize             int64             `json:"totalSize"`
	PublicAccess          string            `json:"publicAccess,omitempty"`
	HasLegalHold          bool              `json:"hasLegalHold,omitempty"`
	HasImmutabilityPolicy bool              `json:"hasImmutabilityPolicy,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

func toContainerResponse(c *cachedb.Container) containerResponse {
	return containerResponse{
		Name:                  c.Name,
		ETag:                  c.ETag,
		LastModified:          c.LastModified,
		BlobCount:             c.BlobCount,
		TotalSize:             c.TotalSize,
		PublicAccess:          c.PublicAccess,
		HasLegalHold:          c.HasLegalHold,
		HasImmutabilityPolicy: c.HasImmutabilityPolicy,
		Metadata:              c.Metadata(),
	}
}

func pagingParams(r *http.Request) (prefix string, limit, offset int) {
	q := r.URL.Query()
	prefix = q.Get("prefix")
	limit, _ = strconv.Atoi(q.Get("limit"))   //nolint:errcheck
	offset, _ = strconv.Atoi(q.Get("offset")) //nolint:errcheck

	return
}

func (s *Server) handleContainerList(w http.ResponseWriter, r *http.Request) {
	prefix, limit, offset := pagingParams(r)

	containers, err := s.repo.ListContainers(r.Context(), prefix, limit, offset)
	if err != nil {
		writeError(w, err)

		return
	}

	result := make([]containerResponse, 0, len(containers))
	for i := range containers {
		result = append(result, toContainerResponse(&containers[i]))
	}

	writeJSON(w, http.StatusOK, result)
}

type createContainerRequest struct {
	Name         string            `json:"name"`
	PublicAccess string            `json:"publicAccess,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	var req createContainerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.repo.CreateContainer(r.Context(), req.Name, remote.ContainerOptions{
		PublicAccess: req.PublicAccess,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, toContainerResponse(c))
}

func (s *Server) handleContainerGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.GetContainer(r.Context(), mux.Vars(r)["container"])
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, toContainerResponse(c))
}

type updateContainerRequest struct {
	PublicAccess string            `json:"publicAccess,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleContainerUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateContainerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.repo.UpdateContainer(r.Context(), mux.Vars(r)["container"], remote.ContainerOptions{
		PublicAccess: req.PublicAccess,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, toContainerResponse(c))
}

func (s *Server) handleContainerDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteContainer(r.Context(), mux.Vars(r)["container"]); err != nil {
		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
