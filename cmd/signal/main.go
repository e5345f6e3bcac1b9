package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/services"
	httphandlers "roomlink/internal/handlers/http"
	"roomlink/internal/infrastructure/middleware"
	"roomlink/internal/infrastructure/monitoring"
	repositories "roomlink/internal/infrastructure/repositories"
	signalgw "roomlink/internal/infrastructure/signal"
	webrtcinfra "roomlink/internal/infrastructure/webrtc"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
	"roomlink/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/roomlink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			ServiceName: "roomlink-signal",
			JaegerURL:   cfg.Tracing.JaegerURL,
			Environment: cfg.Tracing.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	roomRepo := repoFactory.CreateRoomRepository()

	// Initialize room registry
	roomService := services.NewRoomService(roomRepo, services.RoomConfig{
		CodeAttempts:  cfg.Rooms.CodeAttempts,
		GracePeriod:   cfg.Rooms.GracePeriod,
		StaleAfter:    cfg.Rooms.StaleAfter,
		SweepInterval: cfg.Rooms.SweepInterval,
	}, log)
	roomService.Start(context.Background())
	defer roomService.Stop()

	// Initialize monitoring
	var collector *monitoring.Collector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewCollector()
	}

	// Initialize signaling gateway
	gateway := signalgw.NewGateway(roomService, collector, zapLogger)
	gateway.SetPingInterval(cfg.Signal.PingInterval)
	gateway.SetPongTimeout(cfg.Signal.PongTimeout)
	gateway.SetWriteTimeout(cfg.Signal.WriteTimeout)

	// ICE credential source with static STUN fallback
	fallback := make([]domain.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		fallback = append(fallback, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	credentials := webrtcinfra.NewCredentialSource(
		cfg.WebRTC.CredentialServiceURL,
		cfg.WebRTC.CredentialTimeout,
		fallback,
		zapLogger,
	)

	// Initialize HTTP handlers
	roomHandler := httphandlers.NewRoomHandler(roomService, collector)
	iceHandler := httphandlers.NewICEHandler(credentials)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Global HTTP rate limiting (if enabled)
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	roomHandler.SetupRoutes(router)
	iceHandler.SetupRoutes(router)

	// Signaling websocket, with its own connection rate limit
	router.GET("/ws", middleware.NewWSRateLimitMiddleware(cfg), gin.WrapF(gateway.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": gateway.ConnectionCount(),
		})
	})

	// Readiness endpoint checks the storage backend
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting RoomLink signaling server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down RoomLink signaling server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	log.Info("RoomLink signaling server stopped")
}
