package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
)

const (
	// QueuePrefix is the path prefix for the worker protocol
	QueuePrefix = "/v1/queue/"

	updateStatusSegment = "updatemodulestatus/"

	// DefaultMaxResponseBytes caps the size of a worker result
	DefaultMaxResponseBytes int64 = 64 << 20
)

// workerResponse holds the fields the gateway reads from a worker result
type workerResponse struct {
	ModuleID   string          `json:"moduleId"`
	Command    string          `json:"command"`
	StatusData json.RawMessage `json:"statusData"`
}

// QueueHandler implements the worker side of the gateway: long-poll dequeue,
// result submission and module status updates.
type QueueHandler struct {
	queue        WorkQueue
	modules      ModuleTracker
	eventService interfaces.EventService
	logger       arbor.ILogger
	maxResponse  int64
}

// NewQueueHandler creates a new QueueHandler. modules and eventService may be nil.
func NewQueueHandler(queue WorkQueue, modules ModuleTracker, eventService interfaces.EventService, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{
		queue:        queue,
		modules:      modules,
		eventService: eventService,
		logger:       logger,
		maxResponse:  DefaultMaxResponseBytes,
	}
}

// SetMaxResponseBytes overrides the worker result size limit
func (h *QueueHandler) SetMaxResponseBytes(limit int64) {
	if limit > 0 {
		h.maxResponse = limit
	}
}

// HandleQueueRoutes routes /v1/queue/* requests
func (h *QueueHandler) HandleQueueRoutes(w http.ResponseWriter, r *http.Request) {
	rest := PathParam(r, QueuePrefix)

	switch r.Method {
	case http.MethodGet:
		h.GetRequestHandler(w, r)
	case http.MethodPost:
		if strings.HasPrefix(strings.ToLower(rest), updateStatusSegment) {
			h.UpdateModuleStatusHandler(w, r)
			return
		}
		h.SetResponseHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetRequestHandler handles GET /v1/queue/{queueName}?moduleid=
func (h *QueueHandler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	queueName := PathParam(r, QueuePrefix)
	if queueName == "" {
		WriteError(w, http.StatusBadRequest, "queue name is required")
		return
	}

	moduleID := QueryValue(r, "moduleid")
	if moduleID != "" && h.modules != nil {
		h.modules.TouchLastSeen(moduleID)
	}

	// pre-status workers report their device through the poll
	if provider := QueryValue(r, "executionProvider"); provider != "" && moduleID != "" && h.modules != nil {
		device := "GPU"
		if strings.EqualFold(provider, "CPU") {
			device = "CPU"
		}
		h.modules.SetInferenceDevice(moduleID, device)
	}

	request, ok := h.queue.Dequeue(r.Context(), queueName, 0)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// A quit request is the last thing a module reads before exiting
	if strings.EqualFold(request.Type, "quit") && moduleID != "" && h.modules != nil && request.Payload != nil {
		if target, ok := request.Payload.GetValue("moduleId"); ok && strings.EqualFold(target, moduleID) {
			h.modules.AdviseShutdown(moduleID)
		}
	}

	WriteJSON(w, http.StatusOK, request)
}

// SetResponseHandler handles POST /v1/queue/{reqid}
func (h *QueueHandler) SetResponseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	requestID := PathParam(r, QueuePrefix)
	if requestID == "" {
		WriteError(w, http.StatusBadRequest, "failure to set response.")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxResponse+1))
	if err != nil {
		h.logger.Warn().Err(err).Str("request_id", requestID).Msg("Failed to read worker response")
		WriteError(w, http.StatusBadRequest, "failure to set response.")
		return
	}
	if int64(len(body)) > h.maxResponse {
		h.logger.Warn().
			Str("request_id", requestID).
			Int64("limit", h.maxResponse).
			Msg("Worker response too large - request left pending")
		WriteError(w, http.StatusRequestEntityTooLarge, "response too large.")
		return
	}

	var response workerResponse
	_ = json.Unmarshal(body, &response)

	moduleID := response.ModuleID
	if moduleID == "" {
		moduleID = QueryValue(r, "moduleid")
	}

	if moduleID != "" && h.modules != nil {
		h.modules.TouchLastSeen(moduleID)
		h.modules.RecordCompletion(moduleID, response.Command)
		if len(response.StatusData) > 0 && isJSONObject(response.StatusData) {
			h.modules.UpdateStatusData(moduleID, response.StatusData)
		}
	}

	if !h.queue.Complete(requestID, string(body)) {
		WriteError(w, http.StatusBadRequest, "failure to set response.")
		return
	}

	if h.eventService != nil {
		h.eventService.Publish(context.Background(), interfaces.Event{
			Type: interfaces.EventRequestCompleted,
			Payload: interfaces.RequestCompletedPayload{
				RequestID: requestID,
				ModuleID:  moduleID,
				Command:   response.Command,
			},
		})
	}

	WriteSuccess(w, "Response saved.")
}

// UpdateModuleStatusHandler handles POST /v1/queue/updatemodulestatus/{moduleId}
func (h *QueueHandler) UpdateModuleStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	rest := PathParam(r, QueuePrefix)
	moduleID := strings.Trim(rest[min(len(updateStatusSegment), len(rest)):], "/")
	if moduleID == "" || h.modules == nil {
		WriteError(w, http.StatusNotFound, "No Module specified")
		return
	}

	h.modules.TouchLastSeen(moduleID)

	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	updated := false
	if statusData := strings.TrimSpace(r.FormValue("statusData")); statusData != "" && isJSONObject([]byte(statusData)) {
		updated = h.modules.UpdateStatusData(moduleID, json.RawMessage(statusData))
	}

	if !updated {
		WriteError(w, http.StatusNotFound, "Module status data not updated")
		return
	}
	WriteSuccess(w, "Module status updated")
}
