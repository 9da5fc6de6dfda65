package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/queue"
)

const (
	// ProxyPrefix is the path prefix for inference routes
	ProxyPrefix = "/v1/"

	maxMultipartMemory = 32 << 20
)

// ProxyHandler forwards inference calls to module queues and waits for the result
type ProxyHandler struct {
	dispatcher RequestDispatcher
	modules    ModuleTracker
	logger     arbor.ILogger
	now        func() time.Time
}

// NewProxyHandler creates a new ProxyHandler. modules may be nil.
func NewProxyHandler(dispatcher RequestDispatcher, modules ModuleTracker, logger arbor.ILogger) *ProxyHandler {
	return &ProxyHandler{
		dispatcher: dispatcher,
		modules:    modules,
		logger:     logger,
		now:        time.Now,
	}
}

// ProxyHandler handles POST /v1/{route...}
func (h *ProxyHandler) ProxyHandler(w http.ResponseWriter, r *http.Request) {
	path := PathParam(r, ProxyPrefix)

	entry, segments, err := h.dispatcher.Resolve(r.Method, path)
	if err != nil {
		h.logger.Debug().Str("method", r.Method).Str("path", path).Msg("No route for inference request")
		WriteErrorResponse(w, queue.ToErrorResponse(err))
		return
	}

	payload, err := buildPayload(r, entry.Command)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("Failed to read request form")
		WriteErrorResponse(w, models.NewErrorResponse("invalid request body: "+err.Error(), http.StatusBadRequest))
		return
	}
	payload.URLSegments = append(payload.URLSegments, segments...)

	start := h.now()
	result, err := h.dispatcher.SendObject(r.Context(), entry.QueueName, payload)
	if err != nil {
		resp := queue.ToErrorResponse(err)
		h.logger.Debug().
			Err(err).
			Str("queue", entry.QueueName).
			Str("command", entry.Command).
			Int("code", resp.Code).
			Str("error", resp.Error).
			Msg("Inference request failed")
		WriteErrorResponse(w, resp)
		return
	}

	result["analysisRoundTripMs"] = h.now().Sub(start).Milliseconds()
	result["processedBy"] = "localhost"
	result["timestampUTC"] = h.now().UTC().Format(http.TimeFormat)

	trackWorkerResponse(h.modules, result)

	WriteJSON(w, http.StatusOK, result)
}

// trackWorkerResponse updates module liveness from the moduleId and statusData a worker reports
func trackWorkerResponse(modules ModuleTracker, result map[string]interface{}) {
	if modules == nil {
		return
	}
	moduleID, _ := result["moduleId"].(string)
	if strings.TrimSpace(moduleID) == "" {
		return
	}
	modules.TouchLastSeen(moduleID)

	if statusData, ok := result["statusData"].(map[string]interface{}); ok {
		if data, err := json.Marshal(statusData); err == nil {
			modules.UpdateStatusData(moduleID, data)
		}
	}
}

// buildPayload collects query values, form values and uploaded files into a request payload
func buildPayload(r *http.Request, command string) (*models.RequestPayload, error) {
	payload := models.NewRequestPayload(command)

	addValues(payload, r.URL.Query())

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, err
		}
		addValues(payload, r.MultipartForm.Value)
		if err := addFiles(payload, r.MultipartForm.File); err != nil {
			return nil, err
		}
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		addValues(payload, r.PostForm)
	}

	return payload, nil
}

func addValues(payload *models.RequestPayload, values map[string][]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range values[k] {
			payload.AddValue(k, v)
		}
	}
}

func addFiles(payload *models.RequestPayload, files map[string][]*multipart.FileHeader) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, header := range files[name] {
			data, err := readFormFile(header)
			if err != nil {
				return err
			}
			payload.AddFile(models.FormFile{
				Name:        name,
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return nil
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
