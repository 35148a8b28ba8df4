package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jimmy-lgtm/pd-sms/config"
	"github.com/jimmy-lgtm/pd-sms/handler"
	"github.com/jimmy-lgtm/pd-sms/middleware"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

func main() {
	// Optional .env for local development; config values reference env vars.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize gateways
	twilioSvc := service.NewTwilioService(&cfg.Twilio)
	pipedriveSvc := service.NewPipedriveService(&cfg.Pipedrive)
	slackSvc := service.NewSlackService(&cfg.Slack)

	var mediaSvc *service.MediaService
	if cfg.Media.Enabled {
		mediaSvc, err = service.NewMediaService(&cfg.Media)
		if err != nil {
			slog.Error("failed to initialize media service", "error", err)
			os.Exit(1)
		}
		if err := mediaSvc.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure media bucket", "error", err)
			os.Exit(1)
		}
	}

	// Initialize message store with config
	service.InitMessageStore(&cfg.Store)

	resolver := service.NewResolver(pipedriveSvc)
	notes := service.NewNoteLogger(pipedriveSvc)

	deduper := service.NewDeduper(
		time.Duration(cfg.Dedupe.RetentionMinutes)*time.Minute,
		time.Duration(cfg.Dedupe.SweepSeconds)*time.Second,
	)
	deduper.Start()
	defer deduper.Stop()

	// Background work spawned by the webhook handlers, drained on shutdown.
	var background sync.WaitGroup

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	inboundHandler := handler.NewInboundHandler(resolver, notes, slackSvc, mediaSvc)
	sendHandler := handler.NewSendHandler(twilioSvc, notes)
	commandHandler := handler.NewSlackCommandHandler(cfg, resolver, twilioSvc, notes, &background)
	eventsHandler := handler.NewSlackEventsHandler(slackSvc, resolver, twilioSvc, notes, deduper, &background)
	noteHandler := handler.NewNoteWebhookHandler(pipedriveSvc, twilioSvc, notes, cfg.Pipedrive.NoteTag)
	messagesHandler := handler.NewMessagesHandler()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())     // Request ID for tracing
	router.Use(middleware.Recovery())      // Panic recovery
	router.Use(middleware.RequestLogger()) // Access logging
	router.Use(corsMiddleware())           // CORS for the operator API

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Webhook routes; the upstream services authenticate out of band
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/twilio", inboundHandler.Handle)
		webhooks.POST("/slack/command", commandHandler.Handle)
		webhooks.POST("/slack/events", eventsHandler.Handle)
		webhooks.POST("/crm/note", noteHandler.Handle)
	}

	// Operator API
	api := router.Group("/api")
	api.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute
	{
		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/messages/send", sendHandler.Handle)
		protected.GET("/messages", messagesHandler.List)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight background sends finish.
	done := make(chan struct{})
	go func() {
		background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("background work did not drain before timeout")
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
