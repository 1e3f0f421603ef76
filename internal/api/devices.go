package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openmural/signage-core/internal/assignment"
	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/gateway"
	"github.com/openmural/signage-core/internal/infrastructure/mqtt"
	"github.com/openmural/signage-core/internal/store"
)

// deviceResponse is the wire form of a device: the document body plus
// its identity and revision.
type deviceResponse struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
	*fleet.Device
}

func toDeviceResponse(d *fleet.Device) deviceResponse {
	return deviceResponse{ID: d.ID, Rev: d.Rev, Device: d}
}

// handleListDevices returns all devices, optionally filtered by
// ?status=online|offline.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []*fleet.Device
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		devices, err = s.registry.DevicesByStatus(r.Context(), status)
		if errors.Is(err, fleet.ErrInvalidStatus) {
			writeBadRequest(w, "status must be online or offline")
			return
		}
	} else {
		devices, err = s.registry.ListDevices(r.Context())
	}
	if err != nil {
		writeInternalError(w, "listing devices")
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// registerDeviceRequest is the body for POST /devices.
type registerDeviceRequest struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Location string              `json:"location"`
	Address  string              `json:"address"`
	Config   *fleet.DeviceConfig `json:"config"`
}

// handleRegisterDevice creates a device ahead of its first telemetry.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	d := &fleet.Device{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		Address:  req.Address,
	}
	if req.Config != nil {
		d.Config = *req.Config
	}

	err := s.registry.RegisterDevice(r.Context(), d)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "device already exists")
		return
	case errors.Is(err, fleet.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case err != nil:
		writeInternalError(w, "registering device")
		return
	}

	writeJSON(w, http.StatusCreated, toDeviceResponse(d))
}

// handleGetDevice returns one device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, fleet.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, "loading device")
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// updateDeviceRequest is the body for PATCH /devices/{id}.
// Only provided fields are changed.
type updateDeviceRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Address  *string `json:"address"`
}

// handleUpdateDevice applies a partial update to descriptive fields.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, fleet.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, "loading device")
		return
	}

	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Location != nil {
		d.Location = *req.Location
	}
	if req.Address != nil {
		d.Address = *req.Address
	}

	err = s.registry.PutDevice(r.Context(), d)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "device was modified concurrently")
		return
	case errors.Is(err, fleet.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
		return
	case err != nil:
		writeInternalError(w, "updating device")
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// handleUpdateDeviceConfig replaces a device's rendering configuration
// and pushes it to the device as an update_config command.
func (s *Server) handleUpdateDeviceConfig(w http.ResponseWriter, r *http.Request) {
	var cfg fleet.DeviceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.UpdateDeviceConfig(r.Context(), id, cfg)
	switch {
	case errors.Is(err, fleet.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, fleet.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
		return
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "device was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "updating device config")
		return
	}

	// Fire-and-forget: the registry is authoritative, the device
	// catches up when reachable.
	if s.gateway != nil {
		if err := s.gateway.PublishCommand(id, gateway.CommandUpdateConfig, cfg); err != nil {
			s.logger.Warn("config push failed", "device_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// commandRequest is the body for POST /devices/{id}/command.
type commandRequest struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// handleDeviceCommand dispatches a command to one device.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command dispatch not available")
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	err := s.gateway.PublishCommand(id, req.Command, payload)
	switch {
	case errors.Is(err, gateway.ErrUnknownCommand):
		writeBadRequest(w, "unknown command: "+req.Command)
		return
	case errors.Is(err, mqtt.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker session is down")
		return
	case err != nil:
		writeInternalError(w, "dispatching command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"command":   req.Command,
	})
}

// handleDevicePlaylist returns the device's computed playlist.
func (s *Server) handleDevicePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	entries, err := s.engine.Playlist(r.Context(), id)
	if err != nil {
		writeInternalError(w, "computing playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlist": entries})
}

// reorderRequest is the body for POST /devices/{id}/playlist/reorder.
type reorderRequest struct {
	Items []assignment.OrderPair `json:"items"`
}

// handleReorderPlaylist applies explicit playlist positions.
func (s *Server) handleReorderPlaylist(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	err := s.engine.Reorder(r.Context(), id, req.Items)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "playlist was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "reordering playlist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reordered": len(req.Items)})
}

// handleShufflePlaylist randomizes the device's playlist order.
func (s *Server) handleShufflePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	err := s.engine.Shuffle(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeConflict(w, "playlist was modified concurrently")
		return
	case err != nil:
		writeInternalError(w, "shuffling playlist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"shuffled": true})
}
