package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/zenbridge/internal/zencontrol"
)

// deviceView is the JSON representation of a device.
type deviceView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Controller string         `json:"controller"`
	State      map[string]any `json:"state"`
}

func newDeviceView(device zencontrol.Device) deviceView {
	return deviceView{
		ID:         device.ID(),
		Name:       device.Name(),
		Type:       device.Type(),
		Controller: device.ControllerUID(),
		State:      device.State(),
	}
}

// handleListDevices returns every device known to the bridge.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()

	views := make([]deviceView, 0, len(devices))
	for _, device := range devices {
		views = append(views, newDeviceView(device))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device := s.bridge.GetDevice(chi.URLParam(r, "id"))
	if device == nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(device))
}

// commandRequest is the body of POST /devices/{id}/command.
type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// handleDeviceCommand dispatches a named command to a device.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	deviceID := chi.URLParam(r, "id")
	err := s.bridge.DeviceCommand(r.Context(), deviceID, req.Command, req.Params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case errors.Is(err, zencontrol.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, zencontrol.ErrUnknownCommand), errors.Is(err, zencontrol.ErrInvalidButton):
		writeBadRequest(w, err.Error())
	case errors.Is(err, zencontrol.ErrCommandTimeout):
		// The optimistic state is already applied; report the divergence.
		writeError(w, http.StatusGatewayTimeout, "command_timeout", err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// assignSceneRequest is the body of POST /devices/{id}/scene.
type assignSceneRequest struct {
	Button  int    `json:"button"`
	SceneID string `json:"scene_id"`
}

// handleAssignScene binds a scene to a switch button.
func (s *Server) handleAssignScene(w http.ResponseWriter, r *http.Request) {
	var req assignSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SceneID == "" {
		writeBadRequest(w, "scene_id is required")
		return
	}

	err := s.bridge.AssignScene(chi.URLParam(r, "id"), req.Button, req.SceneID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case errors.Is(err, zencontrol.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, zencontrol.ErrNotASwitch), errors.Is(err, zencontrol.ErrInvalidButton):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// handleDeviceHistory returns the most recent recorded state changes.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "state history is not enabled")
		return
	}

	deviceID := chi.URLParam(r, "id")
	if s.bridge.GetDevice(deviceID) == nil {
		writeNotFound(w, "device not found")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.recorder.RecentHistory(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"entries":   entries,
		"count":     len(entries),
	})
}
