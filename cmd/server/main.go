package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifedash-backend/config"
	"lifedash-backend/handlers"
	"lifedash-backend/logger"
	"lifedash-backend/repository"
	"lifedash-backend/service"
	"lifedash-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// app holds everything that needs closing on shutdown
type app struct {
	stores    *repository.Stores
	notifier  repository.Notifier
	gemini    *genai.Client
	dashboard *service.DashboardService
}

func (a *app) close() {
	if a.dashboard != nil {
		a.dashboard.Close()
	}
	if a.notifier != nil {
		_ = a.notifier.Close()
	}
	if a.stores != nil {
		a.stores.Close()
	}
	if a.gemini != nil {
		_ = a.gemini.Close()
	}
}

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred cleanup has run
func run() int {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := config.Load()

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	a := &app{}
	defer a.close()

	// A configuration problem keeps the server up in degraded mode
	configErr := cfg.Validate()
	var dashboardHandler *handlers.DashboardHandler
	var exportHandler *handlers.ExportHandler
	if configErr == nil {
		dashboardHandler, exportHandler, configErr = a.wire(cfg, lg)
	}
	if configErr != nil {
		lg.Error("starting without a usable configuration", "error", configErr)
	}

	r := gin.Default()
	r.Use(handlers.CORS(cfg.CORSOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if configErr != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  configErr.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"store":  cfg.StoreType,
		})
	})

	// API routes
	api := r.Group("/api")
	api.Use(handlers.RequireConfig(configErr))
	if configErr == nil {
		handlers.RegisterRoutes(api, dashboardHandler, exportHandler)
	} else {
		api.Any("/*path", func(c *gin.Context) {})
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := serve(srv, quit, lg); err != nil {
		lg.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

// serve runs srv until it fails or a signal arrives on quit, then shuts it
// down gracefully
func serve(srv *http.Server, quit <-chan os.Signal, lg *logger.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		lg.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	lg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

// wire opens the stores, the change feed and the Gemini client and wires
// the services. Any failure is reported as a configuration problem.
func (a *app) wire(cfg config.Config, lg *logger.Logger) (*handlers.DashboardHandler, *handlers.ExportHandler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stores, err := repository.OpenStores(ctx, cfg)
	if err != nil {
		return nil, nil, &config.Error{Problems: []string{"document database unavailable: " + err.Error()}}
	}
	a.stores = stores
	lg.Info("document store ready", "type", cfg.StoreType, "id", cfg.DocumentStoreID())

	notifier, err := repository.OpenNotifier(cfg.RedisURL)
	if err != nil {
		return nil, nil, &config.Error{Problems: []string{"change feed unavailable: " + err.Error()}}
	}
	a.notifier = notifier

	dashRepo := repository.NewDashboardRepository(stores.Documents, stores.Chats, notifier, lg)

	gemini, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, nil, &config.Error{Problems: []string{"gemini client: " + err.Error()}}
	}
	a.gemini = gemini
	lg.Info("gemini client initialized", "model", cfg.GeminiModel)

	policy := service.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.FlowMaxAttempts
	policy.InitialBackoff = cfg.FlowInitialBackoff

	flows, err := service.NewFlowService(
		service.FlowWithGenerator(service.NewGeminiGenerator(gemini, cfg.GeminiModel, lg)),
		service.FlowWithRetryPolicy(policy),
		service.FlowWithLogger(lg),
	)
	if err != nil {
		return nil, nil, err
	}

	a.dashboard = service.NewDashboardService(
		service.DashboardWithPersistence(dashRepo),
		service.DashboardWithFlows(flows),
		service.DashboardWithRetryPolicy(policy),
		service.DashboardWithChatLimit(cfg.ChatHistoryLimit),
		service.DashboardWithLogger(lg),
	)

	exportStorage, err := storage.NewStorageFromEnv()
	if err != nil {
		return nil, nil, &config.Error{Problems: []string{"export storage: " + err.Error()}}
	}
	exports := service.NewExportService(
		service.ExportWithSource(dashRepo),
		service.ExportWithStorage(exportStorage),
		service.ExportWithChatLimit(cfg.ChatHistoryLimit),
		service.ExportWithLogger(lg),
	)

	return handlers.NewDashboardHandler(a.dashboard, flows, lg),
		handlers.NewExportHandler(exports, lg),
		nil
}
