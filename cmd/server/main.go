package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	measurementapp "github.com/medview/backend/internal/application/measurement"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/infrastructure/config"
	"github.com/medview/backend/internal/infrastructure/event"
	"github.com/medview/backend/internal/infrastructure/logger"
	"github.com/medview/backend/internal/infrastructure/telemetry"
	"github.com/medview/backend/internal/infrastructure/tools"
	"github.com/medview/backend/internal/interfaces/http/handler"
	"github.com/medview/backend/internal/interfaces/http/middleware"
	"github.com/medview/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const eventStreamPath = "/api/v1/events/stream"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting measurement backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry providers fall back to no-op when disabled
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.TraceConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	// Level was validated by logger.New
	level, _ := logger.ParseLevel(cfg.Log.Level)
	log = telemetry.BridgeLogger(log, loggerProvider, level)

	// Measurement service and its event bus
	bus := event.NewInMemoryEventBus(logger.Component(log, "event_bus"))
	service := measurementapp.NewService(bus, logger.Component(log, "measurement"))

	metrics, err := telemetry.NewMeasurementMetrics(meterProvider.Meter("medview/measurement"), log)
	if err != nil {
		log.Fatal("Failed to create measurement metrics", zap.Error(err))
	}
	metricsSubscription := metrics.Subscribe(bus)
	defer metricsSubscription.Unsubscribe()

	var handlerOpts []handler.MeasurementHandlerOption
	if cfg.Tools.Enabled {
		source, err := registerTools(service, cfg.Tools, log)
		if err != nil {
			log.Fatal("Failed to register annotation tools", zap.Error(err))
		}
		handlerOpts = append(handlerOpts, handler.WithAnnotationDecoder(source.ID,
			func(annotationType string, raw []byte) (measurement.Annotation, error) {
				return tools.DecodeAnnotation(annotationType, raw)
			}))
	}

	// Event stream
	stream := handler.NewEventStreamHandler(bus,
		handler.WithStreamLogger(logger.Component(log, "event_stream")),
		handler.WithStreamHeartbeat(cfg.HTTP.SSEHeartbeat),
	)
	if err := stream.Start(); err != nil {
		log.Fatal("Failed to start event stream", zap.Error(err))
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, eventStreamPath, "/health"))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   []string{"/health", eventStreamPath},
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.GET("/health", healthHandler(service, stream))

	// The event stream group has no body limit
	bodyLimit := middleware.BodyLimit(cfg.HTTP.MaxBodySize)
	measurementHandler := handler.NewMeasurementHandler(service, handlerOpts...)
	apiRouter := router.NewRouter(engine, router.WithAPIVersion("v1"), router.WithLogger(log)).
		Register(handler.SourceRoutes(measurementHandler).Use(bodyLimit)).
		Register(handler.MeasurementRoutes(measurementHandler).Use(bodyLimit)).
		Register(handler.UnmappedRoutes(measurementHandler).Use(bodyLimit)).
		Register(handler.EventRoutes(stream))
	apiRouter.Setup()
	log.Info("HTTP routes registered", zap.Int("routes", len(apiRouter.Routes())))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// Open event streams never finish on their own, so close them first
	stream.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	service.ClearMeasurements()

	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Logger provider shutdown failed", zap.Error(err))
	}
}

// registerTools creates the source for the built-in annotation tools and
// registers their mappings
func registerTools(service *measurementapp.Service, cfg config.ToolsConfig, log *zap.Logger) (*measurement.Source, error) {
	source, err := service.CreateSource(cfg.SourceName, cfg.SourceVersion)
	if err != nil {
		return nil, err
	}
	if err := tools.RegisterMappings(service, source, logger.Component(log, "tools")); err != nil {
		return nil, err
	}
	log.Info("Annotation tools registered",
		zap.String("source", source.Name),
		zap.String("version", source.Version),
		zap.Int("mappings", len(service.Mappings(source))),
	)
	return source, nil
}

// healthHandler returns a handler for health check endpoints
func healthHandler(service *measurementapp.Service, stream *handler.EventStreamHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"time":           time.Now().Format(time.RFC3339),
			"sources":        len(service.Sources()),
			"measurements":   len(service.GetMeasurements()),
			"stream_clients": stream.ClientCount(),
		})
	}
}
