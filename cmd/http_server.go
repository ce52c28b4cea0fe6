package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	attachmentPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/attachment/postgres"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	authPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/auth/postgres"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification/broker"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	taskPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/task/postgres"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/middleware"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/openapi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/rest"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/user"
	userPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/user/postgres"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and notification websockets`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Broker   broker.Broker
	Hub      *notification.Hub
	Notifier *notification.Notifier
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	if err := setupRoutes(ctx, deps); err != nil {
		deps.Close(context.Background())
		return err
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Logger.Info("Starting HTTP server", "address", addr, "broker", deps.Config.Broker.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	deps.Close(closeCtx)

	deps.Logger.Info("Server stopped")
	return err
}

// Close releases everything in reverse start order: queued notifications are
// flushed before the hub and broker go away.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Notifier != nil {
		d.Notifier.Shutdown(ctx)
	}
	if d.Hub != nil {
		if err := d.Hub.Close(); err != nil {
			d.Logger.Error("Hub close error", "error", err)
		}
	}
	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			d.Logger.Error("Broker close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("Database close error", "error", err)
		}
	}
}

func setupRoutes(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	if cfg.Server.OpenAPIPath != "" {
		doc, err := openapi.Load(ctx, cfg.Server.OpenAPIPath)
		if err != nil {
			return err
		}
		lg.Info("OpenAPI document loaded", "version", doc.Version(), "operations", len(doc.Operations()))
	}

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authRepo := authPostgres.NewRepository(deps.Gorm)
	authService := auth.NewService(authRepo, tokens, cfg.Security.BCryptCost, lg).
		WithDemoLogin(cfg.Security.DemoLoginEnabled)

	userRepo := userPostgres.NewUserRepository(deps.Gorm)
	userService := user.NewService(userRepo, lg)

	store, err := attachment.NewFileStore(cfg.Storage.UploadDir, cfg.Storage.MaxFileBytes)
	if err != nil {
		return fmt.Errorf("failed to open upload directory: %w", err)
	}

	taskService := task.NewService(
		taskPostgres.NewTaskRepository(deps.Gorm),
		taskPostgres.NewSummaryRepository(deps.DB),
		userRepo,
		deps.Notifier,
		store,
		lg,
	)

	attachmentService := attachment.NewService(
		attachmentPostgres.NewAttachmentRepository(deps.Gorm),
		taskService,
		store,
		lg,
	)

	ws := notification.NewWebsocketHandler(deps.Hub, authService, notification.WebsocketConfig{
		PingInterval:   cfg.Notification.WebsocketPing,
		WriteWait:      cfg.Notification.WebsocketWriteWait,
		AllowedOrigins: middleware.SplitOrigins(cfg.Server.AllowedOrigins),
	}, lg)

	health := rest.NewHealthHandler(map[string]rest.Pinger{
		"postgres": deps.DB,
		"broker":   rest.PingerFunc(deps.Hub.Ping),
	})

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Health:         health,
		Auth:           auth.NewHandler(authService),
		User:           user.NewHandler(userService),
		Task:           task.NewHandler(taskService),
		Attachment:     attachment.NewHandler(attachmentService, store.MaxBytes()),
		Notifications:  ws,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
		AllowedOrigins: middleware.SplitOrigins(cfg.Server.AllowedOrigins),
	}, lg)
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithLevel(config.Observability.Logging.Env, config.Observability.Logging.Level)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	b, err := initBroker(ctx, config.Broker, lg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize broker: %w", err)
	}

	hub := notification.NewHub(b, nil, notification.HubConfig{
		SessionBufferSize: config.Notification.SessionBufferSize,
		DeliveryRetries:   config.Notification.DeliveryRetries,
		RetryBaseDelay:    config.Notification.RetryBaseDelay,
	}, lg)

	notifier := notification.NewNotifier(hub, notification.NotifierConfig{
		MaxWorkers:     config.Notification.MaxWorkers,
		JobQueueSize:   config.Notification.JobQueueSize,
		PublishRetries: config.Notification.PublishRetries,
		RetryBaseDelay: config.Notification.RetryBaseDelay,
	}, lg)

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		Gorm:     gdb,
		Broker:   b,
		Hub:      hub,
		Notifier: notifier,
		Router:   chi.NewRouter(),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
}

func initBroker(ctx context.Context, cfg internal.BrokerConfig, lg *slog.Logger) (broker.Broker, error) {
	if cfg.Driver == "memory" {
		lg.Warn("using in-process broker; notifications do not cross processes")
		return broker.NewMemoryBroker(lg, 0), nil
	}

	redisCfg := broker.RedisConfig{
		Address:        cfg.Address,
		Password:       cfg.Password,
		DB:             cfg.DB,
		MaxIdle:        cfg.MaxIdle,
		MaxActive:      cfg.MaxActive,
		IdleTimeout:    cfg.IdleTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	dial := broker.NewRedisDialer(redisCfg)
	b := broker.NewRedisBroker(broker.NewRedisPool(redisCfg, dial), dial, lg)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout+time.Second)
	defer cancel()
	if err := b.Ping(pingCtx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}
