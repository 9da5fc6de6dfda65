package routing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/inferd/internal/models"
)

func TestRouteTable_ResolveIsCaseInsensitive(t *testing.T) {
	table := NewRouteTable()
	table.Register("vision/detection", "ObjectDetection_Queue", "detect")

	entry, ok := table.Resolve("VISION/Detection")
	require.True(t, ok)
	assert.Equal(t, "objectdetection_queue", entry.QueueName)
	assert.Equal(t, "detect", entry.Command)
	assert.Equal(t, "POST", entry.Method)

	_, ok = table.Resolve("vision/unknown")
	assert.False(t, ok)
}

func TestRouteTable_RegisterIsUpsert(t *testing.T) {
	table := NewRouteTable()
	table.Register("text/summarize", "summary_queue", "summarize")
	table.Register("/Text/Summarize/", "summary_queue_v2", "summarize")

	assert.Equal(t, 1, table.Count())
	entry, ok := table.Resolve("text/summarize")
	require.True(t, ok)
	assert.Equal(t, "summary_queue_v2", entry.QueueName)
}

func TestRouteTable_ResolveMethod_LongestPrefix(t *testing.T) {
	table := NewRouteTable()
	table.Register("vision", "generic_queue", "generic")
	table.Register("vision/face", "face_queue", "detect")
	table.Register("vision/face/recognize", "face_queue", "recognize")
	table.RegisterRoute(models.RouteEntry{Path: "vision/face/list", Method: "get", QueueName: "face_queue", Command: "list"})

	entry, segments, err := table.ResolveMethod("POST", "vision/face/recognize")
	require.NoError(t, err)
	assert.Equal(t, "recognize", entry.Command)
	assert.Empty(t, segments)

	entry, segments, err = table.ResolveMethod("post", "vision/face/abc/def")
	require.NoError(t, err)
	assert.Equal(t, "detect", entry.Command)
	assert.Equal(t, []string{"abc", "def"}, segments)

	entry, _, err = table.ResolveMethod("GET", "vision/face/list")
	require.NoError(t, err)
	assert.Equal(t, "list", entry.Command)

	// method must match
	_, _, err = table.ResolveMethod("GET", "vision/face/recognize")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	// a prefix must end on a segment boundary
	entry, segments, err = table.ResolveMethod("POST", "vision/faces")
	require.NoError(t, err)
	assert.Equal(t, "generic", entry.Command)
	assert.Equal(t, []string{"faces"}, segments)

	_, _, err = table.ResolveMethod("POST", "text/summarize")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestRouteTable_RoutesSorted(t *testing.T) {
	table := NewRouteTable()
	table.Register("b", "q", "c")
	table.Register("a", "q", "c")
	table.RegisterRoute(models.RouteEntry{Path: "a", Method: "GET", QueueName: "q", Command: "c"})

	routes := table.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "a", routes[0].Path)
	assert.Equal(t, "GET", routes[0].Method)
	assert.Equal(t, "POST", routes[1].Method)
	assert.Equal(t, "b", routes[2].Path)

	// Resolve prefers POST when a path has several methods
	entry, ok := table.Resolve("a")
	require.True(t, ok)
	assert.Equal(t, "POST", entry.Method)
}

func TestRouteTable_ConcurrentAccess(t *testing.T) {
	table := NewRouteTable()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			table.Register("vision/detection", "q", "detect")
		}()
		go func() {
			defer wg.Done()
			table.Resolve("vision/detection")
			table.Routes()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, table.Count())
}
