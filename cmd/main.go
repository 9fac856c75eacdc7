package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/expensekeeper-client/internal/api"
	"github.com/dtroode/expensekeeper-client/internal/auth"
	"github.com/dtroode/expensekeeper-client/internal/config"
	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/metrics"
	"github.com/dtroode/expensekeeper-client/internal/model"
	"github.com/dtroode/expensekeeper-client/internal/repository/postgres"
	redisrepo "github.com/dtroode/expensekeeper-client/internal/repository/redis"
	"github.com/dtroode/expensekeeper-client/internal/session"
	"github.com/dtroode/expensekeeper-client/internal/token"
	"github.com/dtroode/expensekeeper-client/internal/tokenstore"
	"github.com/dtroode/expensekeeper-client/internal/transport/grpcauth"
	"github.com/dtroode/expensekeeper-client/internal/transport/httpauth"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	logAppVersion()

	persister, closePersister, err := openPersister(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize token storage", "error", err, "backend", cfg.TokenStore.Backend)
	}
	defer closePersister()

	inspector := token.NewJWT()
	store := tokenstore.New(persister)
	if err := store.Load(ctx); err != nil {
		logger.Fatal("failed to load token", "error", err)
	}
	if err := seedCredentials(ctx, store, inspector, cfg.Auth); err != nil {
		logger.Fatal("failed to seed credentials", "error", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	recorder, err := metrics.NewRecorder(provider.Meter("github.com/dtroode/expensekeeper-client"))
	if err != nil {
		logger.Fatal("failed to create metrics", "error", err)
	}

	refresher := auth.NewHTTPRefresher(
		&http.Client{Timeout: cfg.API.Timeout},
		strings.TrimSuffix(cfg.API.BaseURL, "/")+cfg.API.RefreshPath,
		inspector,
	)
	coordinator := auth.NewCoordinator(store, refresher, auth.CoordinatorConfig{
		WaitTimeout: cfg.Auth.RefreshWaitTimeout,
		CallTimeout: cfg.Auth.RefreshCallTimeout,
	}, recorder, logger.Component("refresh"))

	sessions := session.NewManager(store, coordinator, logger.Component("session"))
	defer sessions.Close()
	sessions.OnLogout(func(reason session.LogoutReason) {
		logger.Warn("signed out, sign in again to resume sync", "reason", string(reason))
	})

	guard := auth.NewGuard(store, auth.NewTracker(store, nil), coordinator, cfg.Auth.ExpiryWindow, recorder, logger)
	httpClient := httpauth.NewClient(nil, guard, cfg.API.ExcludedPaths(), cfg.API.Timeout, logger.Component("http"))

	apiClient, err := api.NewClient(httpClient, cfg.API.BaseURL, logger.Component("api"))
	if err != nil {
		logger.Fatal("failed to create api client", "error", err)
	}

	var health healthpb.HealthClient
	if cfg.GRPC.Address != "" {
		conn, err := dialGRPC(cfg.GRPC, guard, logger.Component("grpc"))
		if err != nil {
			logger.Fatal("failed to create grpc client", "error", err, "address", cfg.GRPC.Address)
		}
		defer conn.Close()
		health = healthpb.NewHealthClient(conn)
	}

	logger.Info("sync client started", "api", cfg.API.BaseURL, "interval", cfg.Sync.Interval.String())
	runSync(ctx, logger, apiClient, health, cfg.Sync)

	logger.Info("received interruption signal, shutting down")

	totals, err := metrics.Totals(context.Background(), reader)
	if err != nil {
		logger.Error("failed to collect metrics", "error", err)
	}
	for name, v := range totals {
		logger.Info("metric total", "name", name, "value", v)
	}

	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func openPersister(ctx context.Context, cfg *config.Config) (model.TokenPersister, func(), error) {
	switch cfg.TokenStore.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewTokenRepository(db), func() { _ = db.Close() }, nil
	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return redisrepo.NewTokenRepository(rdb, cfg.Redis.Key), func() { _ = rdb.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// seedCredentials stores configured credentials when nothing is stored yet.
func seedCredentials(ctx context.Context, store *tokenstore.Store, inspector model.TokenInspector, cfg config.Auth) error {
	if cfg.AccessToken == "" {
		return nil
	}
	if _, ok := store.Get(); ok {
		return nil
	}

	t := model.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken, TokenType: "Bearer"}
	// opaque tokens carry no claims and are treated as non-expiring
	if exp, iat, err := inspector.Metadata(cfg.AccessToken); err == nil {
		t.ExpiresAt, t.IssuedAt = exp, iat
	}
	return store.Set(ctx, t)
}

func dialGRPC(cfg config.GRPC, guard *auth.Guard, lg *logger.Logger) (*grpc.ClientConn, error) {
	creds, err := grpcauth.Credentials(cfg.EnableTLS, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	return grpcauth.NewConn(cfg.Address, creds,
		grpcauth.NewInterceptor(guard, []string{cfg.AuthService}, lg),
		grpcauth.NewLogging(lg),
	)
}

func runSync(ctx context.Context, lg *logger.Logger, client *api.Client, health healthpb.HealthClient, cfg config.Sync) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		syncOnce(ctx, lg, client, health, cfg.Path)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func syncOnce(ctx context.Context, lg *logger.Logger, client *api.Client, health healthpb.HealthClient, path string) {
	if err := client.Ping(ctx, path); err != nil {
		switch {
		case errors.Is(err, api.ErrUnauthorized):
			lg.Warn("sync skipped, not authenticated", "path", path)
		case ctx.Err() != nil:
		default:
			lg.Error("sync failed", "error", err, "path", path)
		}
	}

	if health == nil {
		return
	}
	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		if ctx.Err() == nil {
			lg.Error("sync service health check failed", "error", err)
		}
		return
	}
	lg.Debug("sync service health", "status", resp.GetStatus().String())
}
