package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/database"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	internalhttp "github.com/mediaforge/mediaforge/internal/http"
	"github.com/mediaforge/mediaforge/internal/http/handlers"
	"github.com/mediaforge/mediaforge/internal/http/middleware"
	"github.com/mediaforge/mediaforge/internal/hwaccel"
	"github.com/mediaforge/mediaforge/internal/progress"
	"github.com/mediaforge/mediaforge/internal/queue"
	"github.com/mediaforge/mediaforge/internal/repository"
	"github.com/mediaforge/mediaforge/internal/service"
	"github.com/mediaforge/mediaforge/internal/storage"
	"github.com/mediaforge/mediaforge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediaforge server",
	Long: `Start the mediaforge HTTP server and API.

The server provides:
- REST API for accounts, uploads, transcoding tasks, and downloads
- WebSocket progress streaming at /ws/progress/{id}
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8000, "Port to listen on")
	serveCmd.Flags().String("database", "mediaforge.db", "Database DSN")
	serveCmd.Flags().String("workspace", "./uploads", "Workspace directory for stored media")

	// Bind flags to viper
	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.workspace_root", serveCmd.Flags().Lookup("workspace"))
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
// This helper ensures lint-compliant error handling for viper.BindPFlag.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// The global viper was initialized by initConfig: defaults, config file,
	// environment, and the flags bound above.
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	// Initialize database
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.Any("error", err))
		}
	}()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB)
	assetRepo := repository.NewAssetRepository(db.DB)
	taskRepo := repository.NewTaskRepository(db.DB)

	// Initialize workspace storage
	ws, err := storage.NewWorkspace(cfg.Storage.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	intake := storage.NewIntake(ws, cfg.Storage, logger)

	// Initialize transcoding machinery
	detector := hwaccel.NewDetector(cfg.Transcoder, logger)
	hub := progress.NewHub()
	queues := queue.NewSet()
	runner := ffmpeg.NewRunner(cfg.Transcoder, cfg.Dispatcher, logger)
	prober := ffmpeg.NewProber(cfg.Transcoder.FFprobePath)

	// Initialize token issuer
	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		return fmt.Errorf("initializing token issuer: %w", err)
	}

	// Initialize services
	userService := service.NewUserService(userRepo, cfg.Auth).WithLogger(logger)
	assetService := service.NewAssetService(assetRepo, taskRepo, ws, intake, prober).WithLogger(logger)
	taskService := service.NewTaskService(taskRepo, assetRepo, ws, runner, hub, queues, detector).WithLogger(logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the hardware capability cache off the request path.
	if cfg.Transcoder.HardwareDetection {
		go detector.Detect(ctx)
	}

	// Tasks left in flight by a previous run are failed before the
	// dispatcher starts picking up new work.
	if err := taskService.RecoverInFlight(ctx); err != nil {
		return fmt.Errorf("recovering in-flight tasks: %w", err)
	}

	dispatcher := queue.NewDispatcher(queues, taskService.Process, cfg.Dispatcher, logger)
	go dispatcher.Run(ctx)

	janitor := storage.NewJanitor(ws, assetRepo, taskRepo, cfg.Storage, logger)
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer janitor.Stop()

	// Initialize HTTP server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	// Bearer auth for every operation that declares a security requirement
	server.API().UseMiddleware(handlers.NewAuthMiddleware(server.API(), tokens, userService))

	// Register handlers
	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db.DB)
	healthHandler.Register(server.API())

	authHandler := handlers.NewAuthHandler(userService, tokens, logger)
	authHandler.Register(server.API())
	authHandler.RegisterToken(server.Router(), cfg.Server.TokenRatePerMin)

	assetHandler := handlers.NewAssetHandler(assetService, logger)
	assetHandler.Register(server.API())
	assetHandler.RegisterRaw(server.Router(), middleware.RequireUser(tokens, userService))

	taskHandler := handlers.NewTaskHandler(taskService, logger)
	taskHandler.Register(server.API())

	capabilitiesHandler := handlers.NewCapabilitiesHandler(taskService)
	capabilitiesHandler.Register(server.API())

	progressHandler := handlers.NewProgressHandler(taskService, tokens, userService, logger)
	progressHandler.RegisterRaw(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Start server
	logger.Info("starting mediaforge server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
