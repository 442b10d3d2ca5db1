package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/diaguru/scheduler/internal/calendargw/breaker"
	"github.com/diaguru/scheduler/internal/calendargw/caldav"
	"github.com/diaguru/scheduler/internal/calendargw/google"
	capturePersistence "github.com/diaguru/scheduler/internal/capture/infrastructure/persistence"
	journalPersistence "github.com/diaguru/scheduler/internal/journal/infrastructure/persistence"
	oauthApplication "github.com/diaguru/scheduler/internal/oauthtoken/application"
	oauthPersistence "github.com/diaguru/scheduler/internal/oauthtoken/infrastructure/persistence"
	"github.com/diaguru/scheduler/internal/orchestrator"
	"github.com/diaguru/scheduler/internal/orchestrator/httpapi"
	"github.com/diaguru/scheduler/internal/orchestrator/lock"
	"github.com/diaguru/scheduler/internal/planner/advisor"
	sharedCrypto "github.com/diaguru/scheduler/internal/shared/infrastructure/crypto"
	"github.com/diaguru/scheduler/internal/shared/infrastructure/eventbus"
	"github.com/diaguru/scheduler/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/diaguru/scheduler/internal/shared/infrastructure/persistence"
	"github.com/diaguru/scheduler/pkg/config"
	"github.com/diaguru/scheduler/pkg/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// main wires the Request Orchestrator's HTTP surface (§6.1), grounded on
// cmd/worker/main.go's standalone-binary shape (its own pgx pool, its own
// signal-driven shutdown) rather than the monolithic cmd/orbita container,
// since the scheduling engine is a separate bounded context with its own
// deployment lifecycle.
func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting scheduling orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	captureRepo := capturePersistence.NewPostgresCaptureRepository(pool)
	planRepo := journalPersistence.NewPostgresPlanRepository(pool)
	outboxRepo := outbox.NewPostgresRepository(pool)
	uow := sharedPersistence.NewPostgresUnitOfWork(pool)

	encrypter, err := sharedCrypto.NewAESGCMFromBase64Key(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize encrypter", "error", err)
		os.Exit(1)
	}

	gatewayResolver, err := buildGatewayResolver(cfg, pool, encrypter, logger)
	if err != nil {
		logger.Error("failed to build calendar gateway", "error", err)
		os.Exit(1)
	}

	locker, redisClient := buildLocker(cfg, logger)

	health := observability.NewHealthRegistry()
	health.Register("database", observability.DatabaseHealthChecker(pool.Ping))
	if redisClient != nil {
		health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	metrics := observability.NewInMemoryMetrics()

	var advisorSvc advisor.Service = advisor.NoOp{}
	if cfg.AdvisorBaseURL != "" {
		advisorSvc = advisor.NewHTTPClient(cfg.AdvisorBaseURL, cfg.AdvisorAPIKey, cfg.AdvisorModel)
		logger.Info("advisor service configured", "base_url", cfg.AdvisorBaseURL)
	}

	handler := orchestrator.NewHandler(captureRepo, planRepo, gatewayResolver, advisorSvc, locker, uow, outboxRepo, logger)

	if cfg.SchedulerJWTSecret == "" {
		logger.Warn("SCHEDULER_JWT_SECRET is unset; requests will fail bearer-token verification")
	}
	resolver := httpapi.NewJWTUserResolver([]byte(cfg.SchedulerJWTSecret))

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Addr = cfg.SchedulerAddr
	server := httpapi.NewServer(serverCfg, handler, resolver, logger).
		WithHealthRegistry(health).
		WithMetrics(metrics)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("orchestrator server error", "error", err)
			cancel()
		}
	}()

	processor := startOutboxProcessor(ctx, cfg, pool, outboxRepo, logger)

	<-ctx.Done()
	logger.Info("shutting down scheduling orchestrator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator server shutdown error", "error", err)
	}
	if processor != nil {
		processor.Stop()
	}
}

// startOutboxProcessor wires the at-least-once event delivery loop for plan
// mutations (schedule/reschedule/undo all write outbox rows in the same
// transaction as the domain write, per §4.8). It is folded into this binary
// rather than run as its own process, since the orchestrator is the only
// producer of outbox rows in this deployment; set OUTBOX_PROCESSOR_ENABLED=false
// to disable it for a process that only serves the HTTP API.
func startOutboxProcessor(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, outboxRepo outbox.Repository, logger *slog.Logger) *outbox.Processor {
	if !cfg.OutboxProcessorEnabled {
		logger.Info("outbox processor disabled")
		return nil
	}

	var publisher eventbus.Publisher
	rabbitPublisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop event publisher", "error", err)
			publisher = eventbus.NewNoopPublisher(logger)
		} else {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = rabbitPublisher
	}

	processorCfg := outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
	}
	processor := outbox.NewProcessor(outboxRepo, publisher, processorCfg, logger)
	logger.Info("starting outbox processor",
		"poll_interval", processorCfg.PollInterval,
		"batch_size", processorCfg.BatchSize,
		"max_retries", processorCfg.MaxRetries,
	)
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	go func() {
		defer cleanupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				deleted, err := outboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			}
		}
	}()

	return processor
}

// buildGatewayResolver picks the Calendar Gateway implementation from
// configuration: Google OAuth when an OAuth provider is configured, CalDAV
// when CalDAV credentials are set, each wrapped in the per-account circuit
// breaker (§4.7).
func buildGatewayResolver(cfg *config.Config, pool *pgxpool.Pool, encrypter sharedCrypto.Encrypter, logger *slog.Logger) (orchestrator.GatewayResolver, error) {
	var gw calendargw.Gateway

	switch {
	case cfg.CalDAVBaseURL != "":
		gw = caldav.NewProvider(staticCalDAVCredentials{cfg}, logger)
	case cfg.OAuthProvider != "":
		accounts := oauthPersistence.NewPostgresAccountRepository(pool)
		tokens := oauthPersistence.NewPostgresTokenRepository(pool)
		svc, err := oauthApplication.NewService(
			cfg.OAuthProvider, cfg.OAuthClientID, cfg.OAuthClientSecret,
			cfg.OAuthAuthURL, cfg.OAuthTokenURL, cfg.OAuthRedirectURL,
			splitScopes(cfg.OAuthScopes), accounts, tokens, encrypter,
		)
		if err != nil {
			return nil, err
		}
		gw = google.NewProvider(svc, logger)
	default:
		gw = google.NewProvider(noAuthenticator{}, logger)
	}

	return orchestrator.StaticGatewayResolver{
		Gateway: breaker.NewGateway(gw, breaker.DefaultConfig(), logger),
	}, nil
}

// buildLocker returns the distributed scheduling lock (§4.6) along with the
// Redis client backing it, so callers can also register it as a health
// dependency; the client is nil when no Redis is configured.
func buildLocker(cfg *config.Config, logger *slog.Logger) (lock.Locker, *redis.Client) {
	if cfg.RedisURL == "" {
		logger.Info("no Redis URL configured, using in-process scheduling lock")
		return lock.NewInProcessLocker(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("failed to parse REDIS_URL, falling back to in-process lock", "error", err)
		return lock.NewInProcessLocker(), nil
	}
	client := redis.NewClient(opts)
	return lock.NewRedisLocker(client), client
}

func splitScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}
	return strings.Split(scopes, ",")
}

// staticCalDAVCredentials resolves every user to the same configured CalDAV
// account, the common case for a single-tenant deployment.
type staticCalDAVCredentials struct {
	cfg *config.Config
}

func (c staticCalDAVCredentials) Credentials(ctx context.Context, userID uuid.UUID) (caldav.Credentials, error) {
	return caldav.Credentials{
		BaseURL:  c.cfg.CalDAVBaseURL,
		Username: c.cfg.CalDAVUsername,
		Password: c.cfg.CalDAVPassword,
	}, nil
}

// noAuthenticator is used when neither CalDAV nor OAuth is configured; every
// gateway call fails with ErrNotLinked rather than the process refusing to
// start, so schedule-capture requests surface a clear not_linked response.
type noAuthenticator struct{}

func (noAuthenticator) TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	return nil, calendargw.ErrNotLinked
}
