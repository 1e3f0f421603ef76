package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openmural/signage-core/internal/assignment"
	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/store"
)

// contentResponse is the wire form of a content item: the document
// body plus its identity and revision.
type contentResponse struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
	*fleet.Content
}

func toContentResponse(c *fleet.Content) contentResponse {
	return contentResponse{ID: c.ID, Rev: c.Rev, Content: c}
}

// handleListContent returns content items. Filters:
//
//	?device={id}     - only content assigned to the device, in
//	                   playlist order
//	?status=active   - only active content
func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	var (
		items []*fleet.Content
		err   error
	)
	switch {
	case r.URL.Query().Get("device") != "":
		items, err = s.registry.ContentForDevice(r.Context(), r.URL.Query().Get("device"))
	case r.URL.Query().Get("status") == fleet.ContentActive:
		items, err = s.registry.ActiveContent(r.Context())
	default:
		items, err = s.registry.ListContent(r.Context())
	}
	if err != nil {
		writeInternalError(w, "listing content")
		return
	}

	out := make([]contentResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toContentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": out})
}

// createContentRequest is the body for POST /content.
type createContentRequest struct {
	ID        string                `json:"id"`
	Filename  string                `json:"filename"`
	Size      int64                 `json:"size"`
	MediaType string                `json:"media_type"`
	Status    string                `json:"status"`
	Metadata  fleet.ContentMetadata `json:"metadata"`
	Schedule  *fleet.ScheduleWindow `json:"schedule"`
}

// handleCreateContent registers a content item. The binary payload is
// uploaded separately to the attachment route.
func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var req createContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeBadRequest(w, "filename is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c := &fleet.Content{
		ID:        req.ID,
		Filename:  req.Filename,
		Size:      req.Size,
		MediaType: req.MediaType,
		Status:    req.Status,
		Metadata:  req.Metadata,
		Schedule:  req.Schedule,
	}

	err := s.registry.CreateContent(r.Context(), c)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "content already exists")
		return
	case err != nil:
		writeInternalError(w, "creating content")
		return
	}

	writeJSON(w, http.StatusCreated, toContentResponse(c))
}

// handleGetContent returns one content item by id.
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.GetContent(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, fleet.ErrContentNotFound) {
		writeNotFound(w, "content not found")
		return
	}
	if err != nil {
		writeInternalError(w, "loading content")
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// handleDeleteContent removes a content item, its attachment, and its
// playlist entries on every device.
func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	err := s.engine.DeleteContent(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, fleet.ErrContentNotFound):
		writeNotFound(w, "content not found")
		return
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "content was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "deleting content")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// assignRequest is the body for POST /content/{id}/assign.
type assignRequest struct {
	DeviceIDs  []string `json:"device_ids"`
	StartOrder int      `json:"start_order"`
}

// handleAssignContent assigns content to devices.
func (s *Server) handleAssignContent(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeBadRequest(w, "device_ids is required")
		return
	}

	c, err := s.engine.Assign(r.Context(), chi.URLParam(r, "id"), req.DeviceIDs, req.StartOrder)
	switch {
	case errors.Is(err, fleet.ErrContentNotFound):
		writeNotFound(w, "content not found")
		return
	case errors.Is(err, fleet.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "content was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "assigning content")
		return
	}

	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// unassignRequest is the body for POST /content/{id}/unassign.
type unassignRequest struct {
	DeviceID string `json:"device_id"`
}

// handleUnassignContent removes content from one device's playlist.
func (s *Server) handleUnassignContent(w http.ResponseWriter, r *http.Request) {
	var req unassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	c, err := s.engine.Unassign(r.Context(), chi.URLParam(r, "id"), req.DeviceID)
	switch {
	case errors.Is(err, fleet.ErrContentNotFound):
		writeNotFound(w, "content not found")
		return
	case errors.Is(err, assignment.ErrNotAssigned):
		writeConflict(w, "content is not assigned to that device")
		return
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "content was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "unassigning content")
		return
	}

	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// handleGetAttachment streams the binary payload of a content item.
func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	att, err := s.registry.GetAttachment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, fleet.ErrContentNotFound) {
		writeNotFound(w, "attachment not found")
		return
	}
	if err != nil {
		writeInternalError(w, "loading attachment")
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+att.Name+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(att.Data)
}

// handlePutAttachment stores the binary payload of a content item.
// The caller supplies the current revision via If-Match (or ?rev=);
// the write bumps the content revision.
func (s *Server) handlePutAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rev := r.Header.Get("If-Match")
	if rev == "" {
		rev = r.URL.Query().Get("rev")
	}
	if rev == "" {
		writeBadRequest(w, "current revision required (If-Match header or rev query)")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeBadRequest(w, "Content-Type header is required")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body")
		return
	}

	c, err := s.registry.GetContent(r.Context(), id)
	if errors.Is(err, fleet.ErrContentNotFound) {
		writeNotFound(w, "content not found")
		return
	}
	if err != nil {
		writeInternalError(w, "loading content")
		return
	}

	newRev, err := s.registry.PutAttachment(r.Context(), id, rev, c.Filename, contentType, data)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "content was modified concurrently")
		return
	case errors.Is(err, fleet.ErrContentNotFound):
		writeNotFound(w, "content not found")
		return
	case err != nil:
		writeInternalError(w, "storing attachment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":   id,
		"rev":  newRev,
		"size": len(data),
	})
}
