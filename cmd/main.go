package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/clients/shopify"
	"rms-connector-service/internal/config"
	"rms-connector-service/internal/database"
	"rms-connector-service/internal/handlers"
	"rms-connector-service/internal/metrics"
	"rms-connector-service/internal/middleware"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
	"rms-connector-service/internal/retry"
	"rms-connector-service/internal/services"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	// Load configuration
	cfg := config.Load()

	// Connect to the RMS database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	itemRepo := repository.NewItemRepository(db)

	// Initialize the retry fabric and the storefront gateway
	fabric := retry.NewFabric()
	gateway := shopify.NewClient(shopify.Config{
		StoreDomain: cfg.ShopifyStoreDomain,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
	})

	// Initialize services
	resolver := services.NewCustomerResolver(customerRepo, services.CustomerPolicy{
		AllowGuestOrders:       cfg.AllowGuestOrders,
		RequireCustomerEmail:   cfg.RequireCustomerEmail,
		DefaultGuestCustomerID: cfg.DefaultGuestCustomerID,
	})
	converter := services.NewOrderConverter(services.ConverterConfig{
		StoreID:        cfg.RmsStoreID,
		ShippingItemID: cfg.ShippingItemID,
	}, itemRepo)
	writer := services.NewOrderWriter(orderRepo, cfg.ShippingItemID)
	poller := services.NewOrderPoller(gateway, orderRepo, resolver, converter, writer, fabric, services.PollerDefaults{
		LookbackMinutes:   cfg.PollingLookbackMinutes,
		BatchSize:         cfg.PollingBatchSize,
		MaxPages:          cfg.PollingMaxPages,
		FinancialStatuses: cfg.AllowedFinancialStatuses,
	})

	syncMetrics := metrics.New(prometheus.DefaultRegisterer)
	orchestrator := services.NewOrchestrator(poller, fabric, syncMetrics)
	orchestrator.Initialize()
	defer orchestrator.Close()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	syncHandler := handlers.NewSyncHandler(orchestrator, gateway)

	// Setup router
	router := setupRouter(cfg, healthHandler, syncHandler)

	// Background polling scheduler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.EnableOrderPolling {
		go runScheduler(ctx, orchestrator, cfg.PollingInterval())
	} else {
		log.Info("Order polling is disabled, cycles run on demand only")
	}

	// Start server
	log.Infof("RMS Connector Service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runScheduler runs one poll cycle per interval until ctx is cancelled. The
// orchestrator serializes cycles, so a slow cycle delays the next tick
// instead of overlapping it.
func runScheduler(ctx context.Context, orchestrator *services.Orchestrator, interval time.Duration) {
	log.Infof("Order polling scheduler started, interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Order polling scheduler stopped")
			return
		case <-ticker.C:
			report := orchestrator.PollAndSync(ctx, models.PollOptions{})
			log.WithFields(log.Fields{
				"status":   report.Status,
				"polled":   report.Statistics.TotalPolled,
				"created":  report.Statistics.NewlySynced,
				"updated":  report.Statistics.Updated,
				"errors":   report.Statistics.SyncErrors,
				"duration": report.DurationSeconds,
			}).Info("Poll cycle finished")
		}
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	// Security headers middleware
	router.Use(middleware.SecurityHeaders())

	// CORS middleware
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	router.Use(middleware.CORS(origins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		sync := v1.Group("/sync")
		{
			sync.POST("/poll", syncHandler.TriggerPoll)
			sync.GET("/stats", syncHandler.GetStats)
			sync.POST("/stats/reset", syncHandler.ResetStats)
			sync.GET("/report", syncHandler.GetLastReport)
			sync.GET("/orders/:id", syncHandler.GetOrder)
		}
	}

	return router
}
