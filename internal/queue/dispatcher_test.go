package queue

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/routing"
)

// worker answers every request on queueName with respond(request) until ctx ends
func worker(ctx context.Context, b *Broker, queueName string, respond func(*models.Request) string) {
	b.EnsureQueueExists(queueName)
	go func() {
		for ctx.Err() == nil {
			req, ok := b.Dequeue(ctx, queueName, 50*time.Millisecond)
			if !ok {
				continue
			}
			b.Complete(req.ID, respond(req))
		}
	}()
}

func TestDispatcher_SendBuildsRequest(t *testing.T) {
	b := newTestBroker(5*time.Second, 4)
	d := NewDispatcher(b, routing.NewRouteTable(), arbor.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan *models.Request, 1)
	worker(ctx, b, "vision", func(req *models.Request) string {
		seen <- req
		return `{"success":true,"count":2}`
	})

	payload := models.NewRequestPayload("detect")
	payload.SetValue("min_confidence", "0.5")

	response, err := d.SendObject(context.Background(), "vision", payload)
	require.NoError(t, err)
	assert.Equal(t, true, response["success"])
	assert.Equal(t, float64(2), response["count"])

	req := <-seen
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "detect", req.Type)
	v, ok := req.Payload.GetValue("min_confidence")
	assert.True(t, ok)
	assert.Equal(t, "0.5", v)
}

func TestDispatcher_FreshIDPerSend(t *testing.T) {
	b := newTestBroker(5*time.Second, 4)
	d := NewDispatcher(b, routing.NewRouteTable(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker(ctx, b, "echo", func(req *models.Request) string { return req.ID })

	first, err := d.Send(context.Background(), "echo", models.NewRequestPayload("x"))
	require.NoError(t, err)
	second, err := d.Send(context.Background(), "echo", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDispatcher_SendObjectRejectsNonObject(t *testing.T) {
	b := newTestBroker(5*time.Second, 4)
	d := NewDispatcher(b, routing.NewRouteTable(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker(ctx, b, "bad", func(req *models.Request) string { return "not json" })

	_, err := d.SendObject(context.Background(), "bad", models.NewRequestPayload("x"))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	resp := ToErrorResponse(err)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "invalid json returned from backend", resp.Error)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestDispatcher_Resolve(t *testing.T) {
	routes := routing.NewRouteTable()
	routes.Register("vision/detection", "ObjectDetection_Queue", "detect")
	d := NewDispatcher(newTestBroker(time.Second, 1), routes, nil)

	entry, segments, err := d.Resolve(http.MethodPost, "/Vision/Detection/extra")
	require.NoError(t, err)
	assert.Equal(t, "objectdetection_queue", entry.QueueName)
	assert.Equal(t, []string{"extra"}, segments)

	_, _, err = d.Resolve(http.MethodPost, "text/summarize")
	assert.ErrorIs(t, err, ErrRouteNotFound)
	assert.ErrorIs(t, err, routing.ErrRouteNotFound)
	resp := ToErrorResponse(err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "no route for POST /text/summarize", resp.Error)
}

func TestDispatcher_DuplicateIDsSurface(t *testing.T) {
	b := newTestBroker(5*time.Second, 4)
	d := NewDispatcher(b, routing.NewRouteTable(), nil)
	d.newID = func() string { return "fixed" }

	first := make(chan error, 1)
	go func() {
		_, err := d.Send(context.Background(), "q", models.NewRequestPayload("x"))
		first <- err
	}()
	require.Eventually(t, func() bool { return b.IsPending("fixed") }, time.Second, 5*time.Millisecond)

	_, err := d.Send(context.Background(), "q", models.NewRequestPayload("x"))
	assert.ErrorIs(t, err, ErrDuplicateRequestID)

	require.True(t, b.Complete("fixed", `{}`))
	assert.NoError(t, <-first)
}

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{newKindError(ErrQueueFull), http.StatusTooManyRequests},
		{newKindError(ErrTimeout), http.StatusGatewayTimeout},
		{NewError(KindCanceledByCaller, "canceled by caller", context.Canceled), StatusClientClosedRequest},
		{newKindError(ErrMalformedResponse), http.StatusBadGateway},
		{newKindError(ErrDuplicateRequestID), http.StatusInternalServerError},
		{newKindError(ErrRouteNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	// the cause of a broker error is not exposed to callers
	resp := ToErrorResponse(NewError(KindCanceledByCaller, "canceled by caller", context.Canceled))
	assert.Equal(t, "canceled by caller", resp.Error)

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			resp := ToErrorResponse(tt.err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}
