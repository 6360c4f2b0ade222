package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/auth"
	"github.com/example/shiftline/internal/config"
	httptransport "github.com/example/shiftline/internal/http"
	"github.com/example/shiftline/internal/logging"
	"github.com/example/shiftline/internal/observability"
	"github.com/example/shiftline/internal/persistence/sqlite"
	"github.com/example/shiftline/internal/persistence/sqlite/migration"
	"github.com/example/shiftline/internal/realtime"
	"github.com/example/shiftline/internal/socket"
	"github.com/example/shiftline/internal/telemetry"
	"github.com/example/shiftline/internal/workers"
)

const serviceName = "shiftline"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		bootstrap.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", serviceName, "version", version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then shuts everything down in order.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		app.close(context.Background())
		_ = shutdownTracing(context.Background())
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	app.pruner.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("shiftline API listening", "addr", listener.Addr().String(), "tracing", cfg.TracingEnabled())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		app.router.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", "error", err)
		}
		app.close(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// app holds every long-lived component built from the configuration.
type app struct {
	store   *sqlite.Store
	router  *realtime.Router
	metrics *observability.Metrics
	pruner  *workers.NotificationPruner
	handler http.Handler
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	now := time.Now
	metrics := observability.NewMetrics(nil)

	router := realtime.NewRouter(realtime.NewRegistry(), logger)
	router.SetObserver(metrics)

	jwt := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	authService := application.NewAuthServiceWithLogger(
		newCredentialStoreAdapter(store.Users),
		newTokenIssuerAdapter(jwt),
		nil,
		logger,
	)

	notificationStore := newNotificationStoreAdapter(store.Notifications)
	chatService := application.NewChatServiceWithLogger(
		newChatStoreAdapter(store.Chats),
		newMessageStoreAdapter(store.Messages),
		notificationStore,
		router,
		uuid.NewString,
		now,
		logger,
	)
	chatService.SetPreviewLength(cfg.PreviewLength)
	chatService.SetRecorder(metrics)

	notificationService := application.NewNotificationServiceWithLogger(notificationStore, cfg.NotificationRetention, now, logger)

	pruner, err := workers.NewNotificationPruner(notificationService, cfg.RetentionSchedule, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	pruner.SetRecorder(metrics)

	gateway := socket.NewGateway(authService, chatService, router, socket.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		FrameRate:        rate.Limit(cfg.SocketRate),
		FrameBurst:       cfg.SocketBurst,
		AllowedOrigins:   cfg.AllowedOrigins,
	}, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:          httptransport.NewAuthHandler(authService, logger),
		Chats:         httptransport.NewChatHandler(chatService, logger),
		Notifications: httptransport.NewNotificationHandler(notificationService, logger),
		System:        httptransport.NewSystemHandler(router, store, logger),
		Authenticator: authService,
		Socket:        gateway,
		Metrics:       metrics.Handler(),
		Logger:        logger,
		Middleware:    []func(http.Handler) http.Handler{metrics.HTTPMiddleware},
		Tracing:       cfg.TracingEnabled(),
	})

	return &app{
		store:   store,
		router:  router,
		metrics: metrics,
		pruner:  pruner,
		handler: handler,
		logger:  logger,
	}, nil
}

// close stops the retention worker and releases the database.
func (a *app) close(ctx context.Context) {
	if err := a.pruner.Stop(ctx); err != nil {
		a.logger.Error("failed to stop notification pruner", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}
