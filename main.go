package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/config"
	"github.com/kendall-kelly/repairshop-api/controllers"
	"github.com/kendall-kelly/repairshop-api/middleware"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/services"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reconcileTimeout = 20 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// routerDeps carries what setupRouter mounts. auth guards every route
// except health.
type routerDeps struct {
	auth        gin.HandlerFunc
	orders      *services.OrderService
	attachments *services.AttachmentService
	hub         *services.Hub
}

// backends holds the long-lived collaborators built from configuration and
// the functions that release them on shutdown.
type backends struct {
	orders      *services.OrderService
	attachments *services.AttachmentService
	hub         *services.Hub
	feed        services.ChangeFeed
	reconciler  *services.SnapshotReconciler
	closers     []func() error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.SetConfig(cfg)

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Repair Shop API",
		zap.String("env", cfg.GoEnv),
		zap.String("port", cfg.Port),
		zap.String("env_file", cfg.EnvFile),
	)

	if err := config.ConnectDatabase(cfg, logger); err != nil {
		return err
	}
	db := config.GetDB()

	// Production schemas are managed by cmd/migrate.
	if !cfg.IsProduction() {
		if err := models.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database migration completed successfully")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := buildBackends(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	scheduler := services.NewScheduler(logger)
	if err := scheduler.AddJob("reconcile_snapshots", cfg.ReconcileSchedule, b.reconciler.Job(reconcileTimeout)); err != nil {
		return fmt.Errorf("failed to schedule snapshot reconciliation: %w", err)
	}
	scheduler.Start()
	go b.reconciler.Watch(ctx, b.feed)

	router := setupRouter(cfg, logger, db, routerDeps{
		auth:        middleware.EnsureValidToken(cfg, logger),
		orders:      b.orders,
		attachments: b.attachments,
		hub:         b.hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	<-scheduler.Stop().Done()
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown gracefully", zap.Error(err))
	}
	// Pending line and note edits are written before the database goes away.
	if err := b.orders.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to flush pending edits", zap.Error(err))
	}
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			logger.Warn("Error closing backend", zap.Error(err))
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// buildBackends picks each collaborator from configuration: Redis or memory
// snapshots, Postgres or memory change feed, Kafka or log-only notifications.
func buildBackends(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	var cache services.SnapshotCache = services.NewMemorySnapshotCache()
	if cfg.RedisURL != "" {
		client, err := services.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		cache = services.NewRedisSnapshotCache(client, cfg.SnapshotTTL)
		b.closers = append(b.closers, client.Close)
		logger.Info("Order snapshots stored in Redis")
	}

	if cfg.RealtimeEnabled {
		feed, err := services.NewPostgresChangeFeed(db, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		b.feed = feed
		b.closers = append(b.closers, feed.Close)
		logger.Info("Order changes shared through Postgres LISTEN/NOTIFY")
	} else {
		b.feed = services.NewMemoryChangeFeed(logger)
	}

	repo := services.NewOrderRepository(db, b.feed, logger)
	comments := services.NewCommentLog(db)

	var notifier workflow.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		writer := services.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic, logger)
		kn := services.NewKafkaNotifier(writer, repo, cfg.ShopName, cfg.PublicOrderURL, logger)
		b.closers = append(b.closers, kn.Close)
		notifier = kn
	} else {
		logger.Info("KAFKA_BROKERS not set, phase notifications are only logged")
		notifier = services.NewLogNotifier(logger)
	}

	machine := workflow.NewMachine(repo, comments, notifier, logger)
	b.orders = services.NewOrderService(repo, comments, machine, cache, cfg.LineItemDebounce, cfg.NoteDebounce, logger)
	b.reconciler = services.NewSnapshotReconciler(cache, repo, logger)
	b.hub = services.NewHub(b.feed, logger)

	if cfg.AWSS3Bucket == "" {
		logger.Warn("AWS_S3_BUCKET not set, attachment routes disabled")
		return b, nil
	}
	photos, err := services.NewS3PhotoStore(ctx, cfg)
	if err != nil {
		logger.Warn("S3 unavailable, attachment routes disabled", zap.Error(err))
		return b, nil
	}
	b.attachments = services.NewAttachmentService(db, photos, logger)
	return b, nil
}

// setupRouter builds the gin engine with every /api/v1 route.
func setupRouter(cfg *config.Config, logger *zap.Logger, db *gorm.DB, deps routerDeps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	utils.UseJSONFieldNames()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", deps.auth, middleware.RequireScope(middleware.ScopeReadDiagnostics), databaseStatus)

		users := v1.Group("/users", deps.auth)
		{
			users.POST("", controllers.CreateUser)
			users.GET("/me", controllers.GetMyProfile)
			users.PUT("/me", controllers.UpdateMyProfile)
		}

		if deps.orders != nil {
			protected := v1.Group("", deps.auth, middleware.LoadActor(db))
			controllers.NewOrderController(deps.orders, deps.attachments, deps.hub, logger).RegisterRoutes(protected)
		}
	}

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "X-Snapshot"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORSAllowedOrigins
	}
	return c
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Repair Shop API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		utils.RespondError(c, http.StatusServiceUnavailable, "DATABASE_ERROR", "Database not connected", nil)
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to get database instance", nil)
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_CONNECTION_ERROR", "Database connection failed", nil)
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_QUERY_ERROR", "Failed to query tables", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
