package server

import (
	"net/http"

	"github.com/ternarybob/inferd/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Worker protocol
	mux.HandleFunc(handlers.QueuePrefix, s.app.QueueHandler.HandleQueueRoutes) // GET poll, POST result, POST updatemodulestatus

	// Direct module commands
	mux.HandleFunc(handlers.ModulePrefix, s.handleModuleRoutes)

	// Inference routes registered by modules
	mux.HandleFunc(handlers.ProxyPrefix, s.app.ProxyHandler.ProxyHandler)

	// API routes - gateway introspection
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/queues", s.app.StatusHandler.GetQueuesHandler)
	mux.HandleFunc("/api/modules", s.app.StatusHandler.GetModulesHandler)
	mux.HandleFunc("/api/routes", s.app.APIHandler.RoutesHandler)

	// API routes - system
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	if s.app.Metrics != nil {
		mux.Handle(s.app.Config.Metrics.Path, s.app.Metrics.Handler())
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleModuleRoutes routes /v1/module/{moduleId}/command/{command} requests
func (s *Server) handleModuleRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodPost: s.app.ModuleHandler.CommandHandler,
	})
}
