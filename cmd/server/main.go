// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/comm/bluez"
	"haptic-bridge/internal/comm/dongle"
	"haptic-bridge/internal/comm/lovenseconnect"
	"haptic-bridge/internal/comm/serialport"
	"haptic-bridge/internal/comm/wsdevice"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/routes"
	"haptic-bridge/internal/service"
	"haptic-bridge/internal/utils"
)

const shutdownTimeout = 30 * time.Second

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	router *routes.Router

	registry         *comm.Registry
	discoveryService *service.DiscoveryService
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "haptic-bridge")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize communication managers: %w", err)
	}

	app.discoveryService = service.NewDiscoveryService(app.registry, app.logger)

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeRegistry registers a communication manager for every enabled backend
func (app *Application) initializeRegistry() error {
	cfg := app.config.Comm
	app.registry = comm.NewRegistry(app.logger, cfg.EventBuffer)

	var builders []comm.Builder
	if cfg.Bluetooth.Enabled {
		builders = append(builders, bluez.NewBuilder(cfg.Bluetooth, cfg.ScanInterval, app.logger))
	}
	if cfg.Serial.Enabled {
		builders = append(builders, serialport.NewBuilder(cfg.Serial, cfg.ScanInterval, app.logger))
	}
	if cfg.USB.Enabled {
		usb := cfg.USB
		usb.Debug = usb.Debug || app.config.IsDebugEnabled()
		builder, err := dongle.NewBuilder(usb, cfg.ScanInterval, app.logger)
		if err != nil {
			utils.LogError(app.logger, "USB dongle manager disabled", err)
		} else {
			builders = append(builders, builder)
		}
	}
	if cfg.LovenseConnect.Enabled {
		builders = append(builders, lovenseconnect.NewBuilder(cfg.LovenseConnect, cfg.ScanInterval, app.logger))
	}
	if cfg.WebsocketDevice.Enabled {
		app.logger.Info("Websocket device listener enabled",
			zap.String("address", app.config.GetWebsocketDeviceAddr()),
		)
		builders = append(builders, wsdevice.NewBuilder(cfg.WebsocketDevice, app.logger))
	}

	for _, builder := range builders {
		if _, err := app.registry.Register(builder); err != nil {
			return err
		}
	}

	if len(app.registry.ListManagers()) == 0 {
		return errors.New("no communication managers enabled")
	}

	app.logger.Info("Communication managers registered",
		zap.Int("count", len(app.registry.ListManagers())),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.router = routes.NewRouter(app.config, app.logger, app.discoveryService)
	handler := app.router.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)

	return nil
}

// Start runs the discovery service and HTTP server until a shutdown signal
func (app *Application) Start() error {
	app.discoveryService.Start()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown()
		return nil
	case err := <-serveErr:
		app.shutdown()
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// shutdown stops scanning, closes every manager and session, then the HTTP server
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.discoveryService.Stop(ctx); err != nil {
		app.logger.Error("Discovery service stop error", zap.Error(err))
	}

	app.router.Close()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
