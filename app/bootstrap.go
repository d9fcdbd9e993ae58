package app

import (
	"database/sql"
	"fmt"
	"time"

	"fleet-svc/app/clients"
	"fleet-svc/app/handlers"
	"fleet-svc/app/services"
	"fleet-svc/storage/postgres"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	postgresdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App represents the application
type App struct {
	Config     *Config
	Logger     *zap.Logger
	Storage    clients.StorageAdapter
	JWTService *services.JWTService
	Monitor    *services.NodeMonitor
	Router     *gin.Engine
}

// Bootstrap initializes the application
func Bootstrap() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Build connection string
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	// Initialize storage
	store, err := postgres.NewStore(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Run migrations using golang-migrate
	if err := runMigrations(connString); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize services
	dial := clients.NewNodeDialer(cfg.NodeInsecureTLS)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTExpirationSec)
	placement := services.NewPlacementSelector(cfg.CapacityThreshold, nil)
	captcha := clients.NewCaptchaClient(cfg.CaptchaSecret)
	serverService := services.NewServerService(store, dial, placement, captcha, cfg.CaptchaRequired, logger)
	controlsService := services.NewControlsService(store, dial)
	filesService := services.NewFilesService(store, dial)
	monitor := services.NewNodeMonitor(store, dial, cfg.NodePollInterval, logger)
	relay := services.NewConsoleRelay(store, services.NewUpstreamDialer(cfg.NodeInsecureTLS), logger)

	// Initialize HTTP handlers
	nodeHandler := handlers.NewNodeHandler(store, monitor)
	serverHandler := handlers.NewServerHandler(serverService, controlsService, filesService)
	consoleHandler := handlers.NewConsoleHandler(jwtService, relay, logger)

	// Setup HTTP router
	router := gin.Default()

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	setupRoutes(router, store, jwtService, nodeHandler, serverHandler, consoleHandler)

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Storage:    store,
		JWTService: jwtService,
		Monitor:    monitor,
		Router:     router,
	}

	return app, nil
}

// runMigrations runs database migrations using golang-migrate
func runMigrations(connString string) error {
	// golang-migrate expects database/sql driver, so we use pgx stdlib adapter
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	driver, err := postgresdriver.WithInstance(db, &postgresdriver.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	migrationDir := "storage/postgres/migrations"
	sourceURL := fmt.Sprintf("file://%s", migrationDir)

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			// No new migrations to run - this is fine
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// setupRoutes configures HTTP routes
func setupRoutes(
	router *gin.Engine,
	store clients.StorageAdapter,
	jwtService *services.JWTService,
	nodeHandler *handlers.NodeHandler,
	serverHandler *handlers.ServerHandler,
	consoleHandler *handlers.ConsoleHandler,
) {
	// Health and metrics endpoints
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")

	// Console relay authenticates inside its own handshake
	v1.GET("/console", consoleHandler.Console)

	authed := v1.Group("", handlers.AuthRequired(jwtService))

	// Admin node endpoints
	nodes := authed.Group("/nodes", handlers.AdminRequired(store))
	{
		nodes.POST("", nodeHandler.Create)
		nodes.GET("", nodeHandler.List)
		nodes.GET("/:id", nodeHandler.Get)
		nodes.PUT("/:id", nodeHandler.Update)
		nodes.DELETE("/:id", nodeHandler.Delete)
		nodes.POST("/refresh", nodeHandler.Refresh)
	}

	// Game server endpoints
	servers := authed.Group("/servers")
	servers.POST("", serverHandler.Create)

	server := servers.Group("/:id", handlers.ServerAccess(store))
	{
		server.GET("", serverHandler.Status)
		server.DELETE("", serverHandler.Delete)
		server.POST("/preset", serverHandler.ChangePreset)
		server.POST("/power/:action", serverHandler.Power)
		server.POST("/install", serverHandler.Install)
		server.POST("/reinstall", serverHandler.Reinstall)
		server.POST("/execute", serverHandler.Execute)
		server.GET("/plugins", serverHandler.ListPlugins)
		server.POST("/plugins", serverHandler.InstallPlugin)
		server.DELETE("/plugins/:plugin", serverHandler.RemovePlugin)
		server.POST("/subowners", serverHandler.AddSubowner)
		server.DELETE("/subowners/:userId", serverHandler.RemoveSubowner)
		server.POST("/password", serverHandler.ResetPassword)
		server.POST("/files/check", serverHandler.CheckPath)
		server.POST("/files/contents", serverHandler.FileContents)
		server.POST("/files/write", serverHandler.WriteFile)
		server.POST("/files/remove", serverHandler.RemoveFile)
		server.POST("/files/removeFolder", serverHandler.RemoveFolder)
		server.POST("/files/list", serverHandler.ListDir)
	}
}
