package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "matrix-server-go/docs"
	"matrix-server-go/internal/domain/display"
	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/domain/eventbus/infrastructure"
	"matrix-server-go/internal/domain/eventbus/repository"
	"matrix-server-go/internal/domain/frame"
	domainimage "matrix-server-go/internal/domain/image"
	imagestore "matrix-server-go/internal/domain/image/store"
	instanceservice "matrix-server-go/internal/domain/instance/service"
	"matrix-server-go/internal/domain/transmission"
	platformconfig "matrix-server-go/internal/platform/config"
	platformerrors "matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/httpclient"
	platformlogging "matrix-server-go/internal/platform/logging"
	platformmqtt "matrix-server-go/internal/platform/mqtt"
	platformobservability "matrix-server-go/internal/platform/observability"
	platformstorage "matrix-server-go/internal/platform/storage"
	httptransport "matrix-server-go/internal/transport/http"
	httpimages "matrix-server-go/internal/transport/http/images"
	httpinstances "matrix-server-go/internal/transport/http/instances"
	httpsystem "matrix-server-go/internal/transport/http/system"
	httptransmissions "matrix-server-go/internal/transport/http/transmissions"
	"matrix-server-go/internal/transport/ws"
)

const scalarHTML = `<!DOCTYPE html>
<html lang="en">
	<head>
		<meta charset="utf-8" />
		<title>Matrix Server API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

const (
	eventWorkers   = 4
	eventQueueSize = 256
	shutdownGrace  = 15 * time.Second
)

// Options are the process-level inputs to Run.
type Options struct {
	// ConfigPath pins the YAML file; empty searches the default locations.
	ConfigPath string
	Version    string
	// LookupEnv overrides os.LookupEnv for configuration overrides.
	LookupEnv func(string) (string, bool)
	// DisableDotEnv skips loading a .env file.
	DisableDotEnv bool
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	images                imagestore.Store
	ingestor              *domainimage.Ingestor
	bus                   *eventbus.AsyncEventBus
	history               repository.TransmissionRepository
	mqtt                  *platformmqtt.Publisher
	hub                   *ws.Hub
	pipeline              *transmission.Pipeline
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context, opts Options) error {
	state := &appState{options: opts}
	defer state.close()

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil || state.pipeline == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/pipeline not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}

	// a failed server cancels groupCtx; treat that like a signal
	waitCtx, waitCancel := context.WithCancel(signalCtx)
	defer waitCancel()
	go func() {
		<-groupCtx.Done()
		waitCancel()
	}()

	return waitForShutdown(waitCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Bootstrap", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Bootstrap", "  %s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Bootstrap", "  %s (%s) <- %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "storage:init-image-store",
			Title:     "Open image store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initImageStoreStep,
		},
		{
			ID:        "eventbus:init",
			Title:     "Start event bus and transmission history",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "mqtt:connect",
			Title:     "Connect MQTT exporter",
			DependsOn: []string{"eventbus:init"},
			Kind:      platformerrors.KindTransport,
			Execute:   initMQTTStep,
		},
		{
			ID:        "ws:init-hub",
			Title:     "Attach websocket hub",
			DependsOn: []string{"eventbus:init"},
			Kind:      platformerrors.KindTransport,
			Execute:   initHubStep,
		},
		{
			ID:        "transmission:init-pipeline",
			Title:     "Build transmission pipeline",
			DependsOn: []string{"observability:setup-hooks", "storage:init-image-store", "eventbus:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().
		WithPath(state.options.ConfigPath).
		WithDotEnv(!state.options.DisableDotEnv).
		WithEnv(state.options.LookupEnv)

	result, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	logger.InfoTag("Bootstrap", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(ctx context.Context, state *appState) error {
	db, err := platformstorage.Open(ctx, state.config.Database.DSN)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("Storage", "database ready (%s)", state.config.Database.DSN)
	return nil
}

func initImageStoreStep(ctx context.Context, state *appState) error {
	st, err := imagestore.New(ctx, imagestore.ConfigFrom(state.config.ImageStore), imagestore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-image-store", "failed to open image store", err)
	}
	state.images = st
	state.ingestor = domainimage.NewIngestor(&state.config.Security, state.logger)
	state.logger.InfoTag("Storage", "image store ready (driver=%s)", st.Driver())
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers, eventQueueSize, state.logger)
	bus.Start()
	state.bus = bus

	state.history = infrastructure.NewTransmissionRepository(state.db)
	return eventbus.SetupEventHandlers(bus, state.history, state.logger)
}

func initMQTTStep(_ context.Context, state *appState) error {
	cfg := state.config.MQTT
	if !cfg.Enabled {
		state.logger.DebugTag("MQTT", "exporter disabled")
		return nil
	}

	publisher, err := platformmqtt.Connect(cfg, state.logger)
	if err != nil {
		// the exporter is optional; transmissions keep working without it
		state.logger.WarnTag("MQTT", "exporter unavailable: %v", err)
		return nil
	}
	if err := publisher.Attach(state.bus); err != nil {
		_ = publisher.Close()
		return err
	}
	state.mqtt = publisher
	return nil
}

func initHubStep(_ context.Context, state *appState) error {
	hub := ws.NewHub(state.logger)
	if err := hub.Attach(state.bus); err != nil {
		return err
	}
	state.hub = hub
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	tcfg := state.config.Transmission
	client := httpclient.New(httpclient.Options{UserAgent: tcfg.UserAgent})

	state.pipeline = transmission.NewPipeline(transmission.Dependencies{
		Fetcher:    display.NewFetcher(client, state.logger),
		Encoder:    frame.NewEncoder(state.ingestor.Validator(), state.logger),
		Sender:     frame.NewTransmitter(client, state.logger),
		Downloader: domainimage.NewDownloader(client, state.config.Security.MaxFileSize, state.logger),
		Images:     state.images,
		Events:     state.bus,
		Logger:     state.logger,
	}, transmission.Options{
		Timeout: tcfg.RequestTimeout,
		Retry: transmission.RetryPolicy{
			Attempts:  tcfg.RetryAttempts,
			BaseDelay: tcfg.RetryBaseDelay,
			MaxDelay:  tcfg.RetryMaxDelay,
		},
	})
	state.logger.InfoTag("Transmit", "pipeline ready (timeout %s)", httpclient.FormatTimeout(state.pipeline.Timeout()))
	return nil
}

// buildRouter registers every HTTP surface on a fresh engine.
func buildRouter(ctx context.Context, state *appState) (*gin.Engine, *ws.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") || !config.Web.Enabled {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api Not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.File(strings.TrimSuffix(config.Web.StaticDir, "/") + "/index.html")
	})

	transmissionService, err := httptransmissions.NewService(state.pipeline, state.history, logger)
	if err != nil {
		return nil, nil, err
	}
	instanceService, err := httpinstances.NewService(
		instanceservice.NewInstanceService(platformstorage.NewInstanceRepository(state.db), logger),
		state.pipeline,
		logger,
	)
	if err != nil {
		return nil, nil, err
	}
	imageService, err := httpimages.NewService(state.ingestor, state.images, logger)
	if err != nil {
		return nil, nil, err
	}
	systemService := httpsystem.NewService(state.options.Version, state.healthChecks(), logger)

	for _, svc := range []interface {
		Register(context.Context, *gin.RouterGroup) error
	}{transmissionService, instanceService, imageService, systemService} {
		if err := svc.Register(ctx, apiGroup); err != nil {
			return nil, nil, platformerrors.Wrap(platformerrors.KindTransport, "http:register", "failed to register routes", err)
		}
	}

	wsServer := ws.NewServer(ctx, ws.ServerConfig{}, state.hub, logger)
	wsServer.Register(router)

	router.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.ErrorTag("HTTP", "failed to generate openapi spec: %v", err)
			c.JSON(http.StatusInternalServerError, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{"error": err.Error()},
				Message: "failed to generate openapi spec",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})

	return router, wsServer, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	router, wsServer, err := buildRouter(groupCtx, state)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "api docs: http://localhost:%d/docs", config.Server.Port)

		go func() {
			<-groupCtx.Done()
			wsServer.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("Bootstrap", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(shutdownGrace):
		logger.ErrorTag("Bootstrap", "shutdown timed out after %s", shutdownGrace)
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}

// healthChecks probes every backing dependency that can fail at runtime.
func (s *appState) healthChecks() map[string]httpsystem.Check {
	checks := map[string]httpsystem.Check{
		"database": func(ctx context.Context) error {
			return platformstorage.Ping(ctx, s.db)
		},
		"image_store": func(ctx context.Context) error {
			_, err := s.images.Stats(ctx)
			return err
		},
	}
	if s.mqtt != nil {
		checks["mqtt"] = func(context.Context) error {
			if !s.mqtt.IsConnected() {
				return platformmqtt.ErrNotConnected
			}
			return nil
		}
	}
	return checks
}

// close releases everything in reverse init order. Safe on a partial state.
func (s *appState) close() {
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.mqtt != nil {
		_ = s.mqtt.Close()
	}
	if s.images != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.images.Close(ctx); err != nil {
			s.logger.WarnTag("Storage", "image store close: %v", err)
		}
		cancel()
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag("Storage", "database close: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("Bootstrap", "observability shutdown: %v", err)
		}
		cancel()
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
