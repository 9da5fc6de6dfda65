package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/app"
	"github.com/ternarybob/inferd/internal/common"
	"github.com/ternarybob/inferd/internal/models"
)

const faceDescriptor = `
id = "FaceProcessing"
name = "Face Processing"
queue = "faces"

[[routes]]
name = "Detect"
route = "vision/face"
command = "detect"
`

func newTestConfig(t *testing.T) *common.Config {
	t.Helper()
	root := t.TempDir()
	modulesDir := filepath.Join(root, "modules")
	require.NoError(t, os.MkdirAll(modulesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(modulesDir, "face.toml"), []byte(faceDescriptor), 0644))

	config := common.NewDefaultConfig()
	config.Queue.ResponseTimeout = "3s"
	config.Queue.CommandDequeueTimeout = "200ms"
	config.Modules.Dir = modulesDir
	config.Storage.Badger.Path = filepath.Join(root, "data")
	config.Monitor.Schedule = "@every 1h"
	return config
}

func startServer(t *testing.T, config *common.Config) (*app.App, *httptest.Server) {
	t.Helper()
	application, err := app.New(config, arbor.NewNoOpLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return application, srv
}

func runWorker(t *testing.T, baseURL string) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			resp, err := http.Get(baseURL + "/v1/queue/faces?moduleid=FaceProcessing")
			if err != nil {
				return
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				continue
			}
			var request models.Request
			err = json.NewDecoder(resp.Body).Decode(&request)
			resp.Body.Close()
			if err != nil {
				return
			}

			body, _ := json.Marshal(map[string]interface{}{
				"success":  true,
				"moduleId": "FaceProcessing",
				"command":  request.Type,
			})
			post, err := http.Post(baseURL+"/v1/queue/"+request.ID, "application/json", bytes.NewReader(body))
			if err == nil {
				post.Body.Close()
			}
			return
		}
	}()
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_EndToEnd(t *testing.T) {
	config := newTestConfig(t)
	application, srv := startServer(t, config)

	runWorker(t, srv.URL)

	resp, err := http.Post(srv.URL+"/v1/vision/face", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"processedBy":"localhost"`)

	code, health := get(t, srv.URL+"/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, health, "ok")

	code, routes := get(t, srv.URL+"/api/routes")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, routes, "vision/face")

	code, status := get(t, srv.URL+"/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, status, `"state":"running"`)

	code, metrics := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, metrics, `inferd_requests_total{outcome="completed",queue="faces"} 1`)

	code, _ = get(t, srv.URL+"/api/nope")
	assert.Equal(t, http.StatusNotFound, code)

	moduleStatus, ok := application.ModuleRegistry.Status("FaceProcessing")
	require.True(t, ok)
	assert.Equal(t, int64(1), moduleStatus.Processed)

	require.NoError(t, application.Close())
}

func TestServer_CORSPreflight(t *testing.T) {
	application, srv := startServer(t, newTestConfig(t))
	defer application.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/vision/face", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_ModuleStatusSurvivesRestart(t *testing.T) {
	config := newTestConfig(t)

	first, srv := startServer(t, config)
	runWorker(t, srv.URL)
	resp, err := http.Post(srv.URL+"/v1/vision/face", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, first.Close())

	second, err := app.New(config, arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer second.Close()

	restored, ok := second.ModuleRegistry.Status("FaceProcessing")
	require.True(t, ok)
	assert.Equal(t, int64(1), restored.Processed)
	assert.Equal(t, models.ModuleStateUnknown, restored.State)
}

func TestServer_MetricsDisabled(t *testing.T) {
	config := newTestConfig(t)
	config.Metrics.Enabled = false
	config.Storage.Badger.Enabled = false
	application, srv := startServer(t, config)
	defer application.Close()

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, strings.Contains(body, "inferd_requests_total"))
}
