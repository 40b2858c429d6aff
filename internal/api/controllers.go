package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/zenbridge/internal/zencontrol"
)

// controllerView is the JSON representation of a controller.
type controllerView struct {
	UID              string    `json:"uid"`
	IPAddress        string    `json:"ip_address"`
	Name             string    `json:"name"`
	Ready            bool      `json:"ready"`
	DiscoveryEnabled bool      `json:"discovery_enabled"`
	LastSeen         time.Time `json:"last_seen"`
	DeviceCount      int       `json:"device_count"`
}

func newControllerView(controller *zencontrol.Controller) controllerView {
	return controllerView{
		UID:              controller.UID(),
		IPAddress:        controller.IP(),
		Name:             controller.Name(),
		Ready:            controller.IsReady(),
		DiscoveryEnabled: controller.DiscoveryEnabled(),
		LastSeen:         controller.LastSeen(),
		DeviceCount:      len(controller.Devices()),
	}
}

// handleListControllers returns every controller in the registry.
func (s *Server) handleListControllers(w http.ResponseWriter, _ *http.Request) {
	controllers := s.bridge.Registry().Controllers()

	views := make([]controllerView, 0, len(controllers))
	for _, controller := range controllers {
		views = append(views, newControllerView(controller))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].UID < views[j].UID })

	writeJSON(w, http.StatusOK, map[string]any{
		"controllers": views,
		"count":       len(views),
	})
}
