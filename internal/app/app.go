package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/common"
	"github.com/ternarybob/inferd/internal/handlers"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/metrics"
	"github.com/ternarybob/inferd/internal/queue"
	"github.com/ternarybob/inferd/internal/routing"
	"github.com/ternarybob/inferd/internal/services/events"
	"github.com/ternarybob/inferd/internal/services/modules"
	"github.com/ternarybob/inferd/internal/services/monitor"
	"github.com/ternarybob/inferd/internal/services/status"
	"github.com/ternarybob/inferd/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage (nil when badger is disabled)
	DB                  *badger.BadgerDB
	ModuleStatusStorage interfaces.ModuleStatusStorage

	// Request path
	Broker     *queue.Broker
	Routes     *routing.RouteTable
	Dispatcher *queue.Dispatcher
	Metrics    *metrics.Recorder

	// Services
	EventService   interfaces.EventService
	ModuleRegistry *modules.Registry
	MonitorService *monitor.Service
	StatusService  *status.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	StatusHandler   *handlers.StatusHandler
	ProxyHandler    *handlers.ProxyHandler
	QueueHandler    *handlers.QueueHandler
	ModuleHandler   *handlers.ModuleHandler
	WSHandler       *handlers.WebSocketHandler
	EventSubscriber *handlers.EventSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToEvents(app.EventService, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe logger to events: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.closeDatabase()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.closeDatabase()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if err := app.MonitorService.Start(); err != nil {
		app.closeDatabase()
		return nil, fmt.Errorf("failed to start module monitor: %w", err)
	}

	app.StatusService.SetState(status.StateRunning)

	app.Logger.Info().
		Int("queues", len(app.Broker.QueueNames())).
		Int("routes", app.Routes.Count()).
		Bool("metrics", app.Metrics != nil).
		Bool("persistence", app.DB != nil).
		Msg("Application initialized")

	return app, nil
}

// initDatabase opens badger when module status persistence is enabled
func (a *App) initDatabase() error {
	if !a.Config.Storage.Badger.Enabled {
		a.Logger.Debug().Msg("Badger storage disabled - module status will not survive restarts")
		return nil
	}

	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.ModuleStatusStorage = badger.NewModuleStatusStorage(db, a.Logger)
	return nil
}

// initServices builds the broker, route table, module registry and background services
func (a *App) initServices() error {
	a.Broker = queue.NewBroker(queue.NewConfig(a.Config.Queue), a.Logger)
	a.Routes = routing.NewRouteTable()
	a.Dispatcher = queue.NewDispatcher(a.Broker, a.Routes, a.Logger)

	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.NewRecorder(a.Broker)
		a.Broker.SetMetrics(a.Metrics)
	}

	a.ModuleRegistry = modules.NewRegistry(a.Broker, a.Routes, a.EventService, a.ModuleStatusStorage, a.Logger)
	if _, err := a.ModuleRegistry.LoadDir(context.Background(), a.Config.Modules.Dir); err != nil {
		return fmt.Errorf("failed to load modules from %s: %w", a.Config.Modules.Dir, err)
	}

	a.StatusService = status.NewService(a.Broker, a.ModuleRegistry, a.EventService, a.Logger)

	a.MonitorService = monitor.NewService(monitor.Config{
		Schedule:        a.Config.Monitor.Schedule,
		IdleAfter:       a.Config.Monitor.IdleAfterDuration(),
		StatsInterval:   a.Config.WebSocket.StatsIntervalDuration(),
		CompactSchedule: a.Config.Monitor.CompactSchedule,
	}, a.ModuleRegistry, a.Broker, a.EventService, a.Logger)
	if a.DB != nil {
		a.MonitorService.SetCompactor(a.DB)
	}

	return nil
}

// initHandlers builds the HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Routes)
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.Logger)
	a.ProxyHandler = handlers.NewProxyHandler(a.Dispatcher, a.ModuleRegistry, a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.Broker, a.ModuleRegistry, a.EventService, a.Logger)
	a.ModuleHandler = handlers.NewModuleHandler(a.Dispatcher, a.ModuleRegistry, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(
		a.WSHandler,
		a.EventService,
		a.Logger,
		a.Config.WebSocket.AllowedEvents,
		a.Config.WebSocket.StatsIntervalDuration(),
	)

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.StatusService != nil {
		a.StatusService.SetState(status.StateStopping)
	}

	// Stop the monitor first so the final status snapshot is persisted before badger closes
	if a.MonitorService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.MonitorService.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop module monitor")
		}
		cancel()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	a.closeDatabase()

	a.Logger.Info().Msg("Application closed")
	return nil
}

func (a *App) closeDatabase() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close database")
		return
	}
	a.Logger.Info().Msg("Database closed")
}
