package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/queue"
)

// ModulePrefix is the path prefix for direct module commands
const ModulePrefix = "/v1/module/"

// ModuleHandler sends commands straight to a module's queue
type ModuleHandler struct {
	dispatcher RequestDispatcher
	modules    ModuleTracker
	logger     arbor.ILogger
}

// NewModuleHandler creates a new ModuleHandler
func NewModuleHandler(dispatcher RequestDispatcher, modules ModuleTracker, logger arbor.ILogger) *ModuleHandler {
	return &ModuleHandler{
		dispatcher: dispatcher,
		modules:    modules,
		logger:     logger,
	}
}

// CommandHandler handles POST /v1/module/{moduleId}/command/{command}
func (h *ModuleHandler) CommandHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	parts := strings.Split(PathParam(r, ModulePrefix), "/")
	if len(parts) != 3 || parts[0] == "" || !strings.EqualFold(parts[1], "command") || parts[2] == "" {
		WriteErrorResponse(w, models.NewErrorResponse("ModuleId and command are required", http.StatusBadRequest))
		return
	}
	moduleID, command := parts[0], parts[2]

	descriptor, ok := h.modules.Descriptor(moduleID)
	if !ok {
		WriteErrorResponse(w, models.NewErrorResponse("Module not found", http.StatusNotFound))
		return
	}
	if descriptor.Queue == "" {
		WriteErrorResponse(w, models.NewErrorResponse("Module does not have a queue", http.StatusBadRequest))
		return
	}

	h.logger.Debug().
		Str("module_id", descriptor.ID).
		Str("queue", descriptor.Queue).
		Str("command", command).
		Msg("Sending command to module")

	result, err := h.dispatcher.SendObject(r.Context(), descriptor.Queue, models.NewRequestPayload(command))
	if err != nil {
		WriteErrorResponse(w, queue.ToErrorResponse(err))
		return
	}

	result["timestampUTC"] = time.Now().UTC().Format(http.TimeFormat)
	trackWorkerResponse(h.modules, result)

	WriteJSON(w, http.StatusOK, result)
}
