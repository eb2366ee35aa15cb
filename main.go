package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/config"
	"github.com/ekaya-inc/ekaya-concierge/pkg/crypto"
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/handlers"
	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/logging"
	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/middleware"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
	"github.com/ekaya-inc/ekaya-concierge/pkg/ratelimit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
	"github.com/ekaya-inc/ekaya-concierge/pkg/retry"
	"github.com/ekaya-inc/ekaya-concierge/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if cfg.IsLocal() {
		logConfig = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	return logConfig.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("policy_dir", cfg.Policy.Dir),
		zap.Bool("api_key_required", cfg.API.Key != ""))

	// Database
	// The database may still be starting when the service comes up.
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return database.MigrateFromURL(cfg.Database.URL(), cfg.MigrationsPath, logger.Named("migrations"))
	})
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	m := metrics.New()

	policySource, err := openPolicy(ctx, cfg.Policy, logger)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM, m, logger)
	if err != nil {
		return fmt.Errorf("create completion provider: %w", err)
	}

	var secrets crypto.SecretCipher
	if cfg.SecretsKey != "" {
		enc, err := crypto.NewSecretEncryptor(cfg.SecretsKey)
		if err != nil {
			return fmt.Errorf("create secret encryptor: %w", err)
		}
		secrets = enc
	} else {
		logger.Warn("SECRETS_ENCRYPTION_KEY not set; property access instructions are stored unencrypted")
	}

	// Repositories
	bookingRepo := repositories.NewBookingRepository()
	propertyRepo := repositories.NewPropertyRepository(secrets)
	communicationRepo := repositories.NewCommunicationRepository()
	approvalRepo := repositories.NewApprovalRepository()
	bookingContextRepo := repositories.NewBookingContextRepository(bookingRepo, propertyRepo, communicationRepo, logger)

	// Services
	auditor := audit.NewSecurityAuditor(logger)
	approvalWorkflow := services.NewApprovalWorkflow(approvalRepo, communicationRepo, database.NewTransactor(), m, auditor, logger)
	identity := services.NewIdentityVerifier(bookingRepo, propertyRepo, logger)
	toolExecutor := services.NewToolExecutor(bookingContextRepo, propertyRepo, policySource, identity, approvalWorkflow, m, auditor, logger)
	processor := services.NewRequestProcessor(
		provider,
		services.NewSafetyGate(policySource, auditor, logger),
		toolExecutor,
		services.NewResponseValidator(services.DefaultValidationThreshold),
		services.NewApprovalGate(policySource, logger),
		policySource,
		services.ProcessorSettings{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens},
		auditor,
		logger,
	)
	concierge := services.NewConciergeService(bookingContextRepo, communicationRepo, processor, approvalWorkflow, m, logger)

	// Routes
	mux := http.NewServeMux()
	withScope := database.WithScope(db, logger)

	healthChecks := map[string]handlers.Pinger{"database": db}
	if redisClient != nil {
		healthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if p, ok := provider.(handlers.Pinger); ok {
		healthChecks["llm"] = p
	}
	handlers.NewHealthHandler(cfg, healthChecks, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	apiMux := http.NewServeMux()
	handlers.NewMessagesHandler(concierge, logger).RegisterRoutes(apiMux, withScope)
	handlers.NewApprovalsHandler(approvalWorkflow, logger).RegisterRoutes(apiMux, withScope)
	handlers.NewPolicyHandler(policySource, logger).RegisterRoutes(apiMux)

	auth := middleware.NewAPIKeyAuth(cfg.API.Key, logger)
	if !auth.Enabled() {
		logger.Warn("API key check disabled in local environment")
	}
	mux.Handle("/api/", auth.Require(apiMux))

	limiter := newLimiter(cfg, redisClient, logger)
	var handler http.Handler = mux
	handler = middleware.RateLimit(limiter, cfg.API.RateLimitWindow, m, logger)(handler)
	handler = middleware.RequestLogger(logger, m)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * cfg.LLM.Timeout * time.Duration(cfg.LLM.MaxRetries+1),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-concierge",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLimiter shares counters through Redis when it is configured so every
// replica enforces one budget.
func newLimiter(cfg *config.Config, client *redis.Client, logger *zap.Logger) ratelimit.Limiter {
	if client == nil {
		logger.Info("Rate limiting in process memory")
		return ratelimit.NewMemoryLimiter(cfg.API.RateLimitRequests, cfg.API.RateLimitWindow)
	}
	logger.Info("Rate limiting through Redis")
	return ratelimit.NewRedisLimiter(client, cfg.API.RateLimitRequests, cfg.API.RateLimitWindow, ratelimit.DefaultKeyPrefix)
}

// openPolicy loads the policy, FAQ and prompt files once before serving. The
// service does not start without them; afterwards they are re-read every
// CacheTTL.
func openPolicy(ctx context.Context, cfg config.PolicyConfig, logger *zap.Logger) (*policy.Provider, error) {
	provider := policy.NewProvider(policy.NewDirSource(cfg.Dir), cfg.CacheTTL, logger)
	if _, err := provider.Load(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing, "main.policy", err, "policy files could not be loaded").
			With("dir", cfg.Dir)
	}
	return provider, nil
}
