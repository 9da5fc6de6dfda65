package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/services/status"
)

// StatusHandler handles HTTP requests for gateway status
type StatusHandler struct {
	statusService *status.Service
	logger        arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(statusService *status.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		logger:        logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.statusService.GetStatus())
}

// GetQueuesHandler handles GET /api/queues
func (h *StatusHandler) GetQueuesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot := h.statusService.GetStatus()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queues":  snapshot.Queues,
		"pending": snapshot.Pending,
	})
}

// GetModulesHandler handles GET /api/modules
func (h *StatusHandler) GetModulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot := h.statusService.GetStatus()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"modules": snapshot.Modules,
		"count":   len(snapshot.Modules),
	})
}
