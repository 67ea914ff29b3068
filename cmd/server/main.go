package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library_pos_backend/internal/capture"
	"library_pos_backend/internal/database"
	"library_pos_backend/internal/decode"
	"library_pos_backend/internal/repositories"
	"library_pos_backend/internal/router"
	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/config"
	"library_pos_backend/pkg/events"
	"library_pos_backend/pkg/metrics"
	"library_pos_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.InitLogger("info", "console")
		utils.LogError(err, "Failed to load configuration")
		os.Exit(1)
	}

	// Initialize Logger
	utils.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if err := run(cfg); err != nil {
		utils.LogError(err, "Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openInventory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		publisher = rabbit
		utils.LogInfo("Publishing inventory events", map[string]interface{}{"exchange": cfg.RabbitMQ.Exchange})
	}

	tokens, err := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	scanMetrics := metrics.NewScanMetrics(prometheus.DefaultRegisterer)
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	gateway := decode.Instrument(decode.MinLength(newDecoder(cfg.Scan), cfg.Scan.MinLength), scanMetrics)
	camera := capture.NewPushCamera(cfg.Scan.CameraWait)
	manager := capture.NewManager(camera, gateway, capture.Options{
		Interval:    cfg.Scan.Interval,
		MaxAttempts: cfg.Scan.MaxAttempts,
		MaxDuration: cfg.Scan.MaxDuration,
		DefaultZoom: cfg.Scan.DefaultZoom,
	}, scanMetrics)

	policy := services.CustomerPolicy{Required: cfg.Bill.RequireCustomer, Default: cfg.Bill.DefaultCustomer}
	inventoryService := services.NewInventoryService(repo, publisher, policy, checkoutMetrics)
	billService := services.NewBillService(inventoryService)
	scanService := services.NewScanService(manager, camera, inventoryService, billService, cfg.Scan.MinLength)
	authService := services.NewAuthService(services.OperatorAccount{
		Username:     cfg.Auth.OperatorUsername,
		PasswordHash: cfg.Auth.OperatorPasswordHash,
		Role:         cfg.Auth.OperatorRole,
	}, tokens)

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Add GinLogger middleware for request logging
	engine.Use(utils.GinLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.App.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	router.Setup(engine, router.Dependencies{
		Tokens:    tokens,
		Auth:      authService,
		Inventory: inventoryService,
		Bills:     billService,
		Scans:     scanService,
		Decoder:   gateway,
		Roles:     []string{cfg.Auth.OperatorRole, "Staff"},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{
			"port":      cfg.App.Port,
			"inventory": cfg.App.InventoryBackend,
			"decoder":   cfg.Scan.DecoderMode,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.LogInfo("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scanService.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Capture sessions did not stop in time")
	}
	return srv.Shutdown(shutdownCtx)
}

// openInventory selects the inventory backend. The returned func closes it.
func openInventory(ctx context.Context, cfg *config.Config) (repositories.InventoryRepository, func(), error) {
	switch cfg.App.InventoryBackend {
	case config.BackendRedis:
		client, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		repo := repositories.NewBlobInventoryRepository(database.NewRedisStore(client), cfg.Redis.KeyPrefix)
		return repo, func() { _ = client.Close() }, nil
	default:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return repositories.NewPostgresInventoryRepository(db), func() { _ = db.Close() }, nil
	}
}

func newDecoder(cfg config.ScanConfig) decode.Gateway {
	if cfg.DecoderMode == config.DecoderRemote {
		utils.LogInfo("Using remote barcode decoder", map[string]interface{}{"url": cfg.DecoderURL})
		return decode.NewRemoteDecoder(cfg.DecoderURL, cfg.DecoderTimeout)
	}
	return decode.NewLocalDecoder()
}
