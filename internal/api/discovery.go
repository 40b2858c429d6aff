package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// startDiscoveryRequest is the body of POST /discovery. An empty body is
// treated as a non-resetting background refresh.
type startDiscoveryRequest struct {
	ForceReset bool `json:"force_reset"`
}

// handleStartDiscovery launches a discovery run in the background. The run
// reports its outcome through discovery_complete/discovery_error events on
// the WebSocket stream, not through this response.
func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	var req startDiscoveryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	if s.discovery.Running() {
		writeError(w, http.StatusConflict, ErrCodeConflict, "discovery already running")
		return
	}

	go s.discovery.Run(context.Background(), req.ForceReset)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "started",
		"force_reset": req.ForceReset,
	})
}
