package routing

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/inferd/internal/models"
)

// ErrRouteNotFound is returned when no registered route matches a path
var ErrRouteNotFound = errors.New("route not found")

// RouteTable maps inbound paths to the queue and command that serve them.
// Paths and methods match case-insensitively. Safe for concurrent use.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]models.RouteEntry // key: METHOD + " " + path
}

// NewRouteTable creates an empty route table
func NewRouteTable() *RouteTable {
	return &RouteTable{
		routes: make(map[string]models.RouteEntry),
	}
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Register adds or replaces a POST route
func (t *RouteTable) Register(path, queueName, command string) {
	t.RegisterRoute(models.RouteEntry{
		Path:      path,
		Method:    http.MethodPost,
		QueueName: queueName,
		Command:   command,
	})
}

// RegisterRoute adds or replaces entry. The stored copy is normalized and never mutated afterwards.
func (t *RouteTable) RegisterRoute(entry models.RouteEntry) {
	entry.Path = models.NormalizeRoutePath(entry.Path)
	entry.QueueName = models.NormalizeQueueName(entry.QueueName)
	entry.Method = strings.ToUpper(strings.TrimSpace(entry.Method))
	if entry.Method == "" {
		entry.Method = http.MethodPost
	}

	t.mu.Lock()
	t.routes[routeKey(entry.Method, entry.Path)] = entry
	t.mu.Unlock()
}

// Resolve finds the route registered for exactly path, preferring POST when
// the same path is registered under several methods.
func (t *RouteTable) Resolve(path string) (models.RouteEntry, bool) {
	path = models.NormalizeRoutePath(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.routes[routeKey(http.MethodPost, path)]; ok {
		return entry, true
	}

	var found *models.RouteEntry
	for _, entry := range t.routes {
		if entry.Path != path {
			continue
		}
		if found == nil || entry.Method < found.Method {
			e := entry
			found = &e
		}
	}
	if found == nil {
		return models.RouteEntry{}, false
	}
	return *found, true
}

// ResolveMethod finds the route for method and path. An exact match wins;
// otherwise the longest registered route that is a segment prefix of path is
// used and the remaining segments are returned.
func (t *RouteTable) ResolveMethod(method, path string) (models.RouteEntry, []string, error) {
	path = models.NormalizeRoutePath(path)
	method = strings.ToUpper(strings.TrimSpace(method))

	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.routes[routeKey(method, path)]; ok {
		return entry, []string{}, nil
	}

	var best *models.RouteEntry
	for _, entry := range t.routes {
		if entry.Method != method || entry.Path == "" {
			continue
		}
		if !strings.HasPrefix(path, entry.Path+"/") {
			continue
		}
		if best == nil || len(entry.Path) > len(best.Path) {
			e := entry
			best = &e
		}
	}
	if best == nil {
		return models.RouteEntry{}, nil, ErrRouteNotFound
	}

	return *best, splitSegments(path[len(best.Path)+1:]), nil
}

// Routes lists every registered route ordered by path then method
func (t *RouteTable) Routes() []models.RouteEntry {
	t.mu.RLock()
	routes := make([]models.RouteEntry, 0, len(t.routes))
	for _, entry := range t.routes {
		routes = append(routes, entry)
	}
	t.mu.RUnlock()

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// Count returns the number of registered routes
func (t *RouteTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

func splitSegments(rest string) []string {
	segments := []string{}
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
