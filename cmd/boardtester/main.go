// cmd/boardtester/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/handler"
	"boardtester/internal/protocol"
	"boardtester/internal/routes"
	"boardtester/internal/service"
	"boardtester/internal/utils"
)

// Application represents the test station application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	// Services
	serialService  *service.SerialService
	scannerService *service.ScannerService
	codeClient     *service.CodeClient
	workflow       *service.Workflow
	usbProbe       *service.USBProbe

	// Panel
	socketHub *handler.PanelSocketHandler

	workflowCancel context.CancelFunc
}

func main() {
	app, err := NewApplication(os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance. Positional
// arguments override the configured server URL, API key and UART
// device, in that order.
func NewApplication(args []string) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.ApplyArgs(args)

	baseLogger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{config: cfg}

	// The hub doubles as the on-screen log surface, so it exists
	// before the logger that mirrors into it.
	app.socketHub = handler.NewPanelSocketHandler(baseLogger)
	app.logger = utils.WithPanelSink(baseLogger, app.socketHub)

	serviceLogger := utils.NewServiceLogger(app.logger, "boardtester")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeServices creates service instances and the workflow
func (app *Application) initializeServices() {
	opener := protocol.NewSerialOpener(app.logger)
	app.serialService = service.NewSerialService(&app.config.Serial, opener, app.logger)
	app.scannerService = service.NewScannerService(app.logger)
	app.codeClient = service.NewCodeClient(&app.config.CodeServer, app.logger)
	app.usbProbe = service.NewUSBProbe(app.logger)

	app.workflow = service.NewWorkflow(
		app.config,
		app.serialService,
		app.scannerService,
		app.codeClient,
		app.socketHub,
		app.logger,
	)
	app.socketHub.AttachKeyReceiver(app.workflow)

	app.logger.Info("Services initialized successfully",
		zap.String("serial_device", app.config.Serial.Device),
		zap.String("code_server", app.config.CodeServer.Endpoint),
	)
}

// initializeServer sets up the panel HTTP server and routes
func (app *Application) initializeServer() {
	panelHandler := handler.NewPanelHandler(app.workflow, app.config, app.logger)
	routerManager := routes.NewRouter(app.config, app.logger, panelHandler, app.socketHub)
	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetPanelAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Panel.ReadTimeout,
		WriteTimeout: app.config.Panel.WriteTimeout,
		IdleTimeout:  app.config.Panel.IdleTimeout,
	}

	app.logger.Info("Panel server initialized",
		zap.String("address", app.config.GetPanelAddr()),
	)
}

// Start runs the workflow loop and panel server until a shutdown
// signal arrives
func (app *Application) Start() error {
	workflowCtx, cancel := context.WithCancel(context.Background())
	app.workflowCancel = cancel
	go app.workflow.Run(workflowCtx)

	// One passive inventory pass so a missing scanner shows up in the
	// log before the first run, not halfway through it.
	go app.usbProbe.LogAttachedInputDevices()

	go func() {
		app.logger.Info("Starting panel server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start panel server", zap.Error(err))
		}
	}()

	app.waitForShutdown()
	return nil
}

// waitForShutdown waits for a shutdown signal and performs graceful
// shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "boardtester")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Stop the workflow first; its teardown releases the serial port
	// and abandons any outstanding fetch.
	if app.workflowCancel != nil {
		app.workflowCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("Panel server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("Panel server stopped")
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
