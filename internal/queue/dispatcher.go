package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/common"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/routing"
)

// Submitter is the broker operation the dispatcher depends on
type Submitter interface {
	Submit(ctx context.Context, queueName string, request *models.Request) (string, error)
}

// Dispatcher builds request envelopes for transport code and hands them to the broker
type Dispatcher struct {
	broker Submitter
	routes *routing.RouteTable
	logger arbor.ILogger
	newID  func() string
}

// NewDispatcher creates a dispatcher over broker and routes
func NewDispatcher(broker Submitter, routes *routing.RouteTable, logger arbor.ILogger) *Dispatcher {
	if logger == nil {
		logger = arbor.NewNoOpLogger()
	}
	return &Dispatcher{
		broker: broker,
		routes: routes,
		logger: logger,
		newID:  common.NewRequestID,
	}
}

// Resolve looks up the route serving method and path. The returned segments are
// the trailing path parts beyond the matched route.
func (d *Dispatcher) Resolve(method, path string) (models.RouteEntry, []string, error) {
	entry, segments, err := d.routes.ResolveMethod(method, path)
	if err != nil {
		if errors.Is(err, routing.ErrRouteNotFound) {
			return models.RouteEntry{}, nil, NewError(KindRouteNotFound, fmt.Sprintf("no route for %s /%s", strings.ToUpper(method), models.NormalizeRoutePath(path)), err)
		}
		return models.RouteEntry{}, nil, err
	}
	return entry, segments, nil
}

// Send wraps payload in a new request for queueName and waits for the worker's response
func (d *Dispatcher) Send(ctx context.Context, queueName string, payload *models.RequestPayload) (string, error) {
	if payload == nil {
		payload = models.NewRequestPayload("")
	}
	request := &models.Request{
		ID:      d.newID(),
		Type:    payload.Command,
		Payload: payload,
	}
	return d.broker.Submit(ctx, queueName, request)
}

// SendObject is Send for workers that answer with a JSON object
func (d *Dispatcher) SendObject(ctx context.Context, queueName string, payload *models.RequestPayload) (map[string]interface{}, error) {
	if payload == nil {
		payload = models.NewRequestPayload("")
	}
	response, err := d.Send(ctx, queueName, payload)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		d.logger.Warn().
			Err(err).
			Str("queue", queueName).
			Str("command", payload.Command).
			Msg("Worker returned a response that is not a JSON object")
		return nil, NewError(KindMalformedResponse, "invalid json returned from backend", err)
	}
	if result == nil {
		return nil, newKindError(ErrMalformedResponse)
	}
	return result, nil
}

// ToErrorResponse maps any dispatch error to the caller-facing error object.
// Only the message of a broker error is exposed; its cause stays in the logs.
func ToErrorResponse(err error) *models.ErrorResponse {
	var qe *Error
	if errors.As(err, &qe) {
		return models.NewErrorResponse(qe.Message, qe.Code())
	}
	if err == nil {
		return models.NewErrorResponse("unknown error", http.StatusInternalServerError)
	}
	return models.NewErrorResponse(err.Error(), http.StatusInternalServerError)
}
