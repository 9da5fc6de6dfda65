package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPayload_Values(t *testing.T) {
	payload := NewRequestPayload("detect")

	payload.AddValue("min_confidence", "0.4")
	payload.AddValue("label", "cat")
	payload.AddValue("label", "dog")

	v, ok := payload.GetValue("label")
	assert.True(t, ok)
	assert.Equal(t, "cat", v)
	assert.Equal(t, []string{"cat", "dog"}, payload.GetValues("label"))

	payload.SetValue("label", "bird")
	assert.Equal(t, []string{"bird"}, payload.GetValues("label"))

	_, ok = payload.GetValue("missing")
	assert.False(t, ok)

	payload.SetValue("limit", " 5 ")
	n, ok := payload.GetInt("limit")
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = payload.GetInt("label")
	assert.False(t, ok)
}

func TestRequest_WireFormat(t *testing.T) {
	payload := NewRequestPayload("detect")
	payload.SetValue("min_confidence", "0.4")
	payload.AddFile(FormFile{Name: "image", Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte{1, 2, 3}})
	payload.URLSegments = []string{"extra"}

	data, err := json.Marshal(&Request{ID: "abc", Type: "detect", Payload: payload})
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.Equal(t, "abc", wire["reqid"])
	assert.Equal(t, "detect", wire["reqtype"])

	body := wire["payload"].(map[string]interface{})
	assert.Equal(t, "detect", body["command"])
	assert.Equal(t, []interface{}{"extra"}, body["urlSegments"])

	files := body["files"].([]interface{})
	require.Len(t, files, 1)
	file := files[0].(map[string]interface{})
	assert.Equal(t, "image/jpeg", file["contentType"])
	assert.Equal(t, "AQID", file["data"])

	values := body["values"].([]interface{})
	require.Len(t, values, 1)
	assert.Equal(t, "min_confidence", values[0].(map[string]interface{})["key"])
}

func TestModuleDescriptor_Validate(t *testing.T) {
	valid := ModuleDescriptor{
		ID:    "ObjectDetection",
		Queue: "objectdetection_queue",
		Routes: []ModuleRoute{
			{Route: "vision/detection", Command: "detect"},
		},
	}
	assert.NoError(t, valid.Validate())

	missingQueue := valid
	missingQueue.Queue = ""
	assert.Error(t, missingQueue.Validate())

	badRoute := valid
	badRoute.Routes = []ModuleRoute{{Route: "vision/detection"}}
	assert.Error(t, badRoute.Validate())

	badMethod := valid
	badMethod.Routes = []ModuleRoute{{Route: "vision/detection", Command: "detect", Method: "PATCH"}}
	assert.Error(t, badMethod.Validate())
}

func TestModuleDescriptor_RouteEntries(t *testing.T) {
	d := ModuleDescriptor{
		ID:    "FaceProcessing",
		Queue: " FaceProcessing_Queue ",
		Routes: []ModuleRoute{
			{Route: "/Vision/Face/", Command: "detect"},
			{Route: "vision/face/list", Command: "list", Method: "get"},
		},
	}

	entries := d.RouteEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, "vision/face", entries[0].Path)
	assert.Equal(t, "POST", entries[0].Method)
	assert.Equal(t, "faceprocessing_queue", entries[0].QueueName)
	assert.Equal(t, "FaceProcessing", entries[0].ModuleID)

	assert.Equal(t, "GET", entries[1].Method)
	assert.Equal(t, "list", entries[1].Command)
}
