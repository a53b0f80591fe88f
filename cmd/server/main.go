package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cache"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/checkout"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/config"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/httpapi"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/report"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/service"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store/memory"
	mongostore "github.com/vishnucreator46/SmartTax-Hackthon/internal/store/mongo"
	pgstore "github.com/vishnucreator46/SmartTax-Hackthon/internal/store/postgres"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/tax"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}

	loc, err := cfg.ReportLocation()
	if err != nil {
		logger.WithError(err).Warn("report timezone unavailable, using UTC")
	}

	policy, err := tax.NewPolicy(tax.Settings{
		Strategy:  cfg.Tax.Strategy,
		Threshold: cfg.Tax.BracketThreshold,
		LowRate:   cfg.Tax.LowRate,
		HighRate:  cfg.Tax.HighRate,
		Rates:     cfg.Tax.Rates,
	})
	if err != nil {
		logger.Fatalf("invalid tax configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store unavailable: %v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var (
		sharedCache cache.Noop
		sessions    cache.SessionCache = sharedCache
		summaries   cache.SummaryCache = sharedCache
		locker      checkout.Locker
	)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, sessions stay in process and checkout runs unlocked")
		} else {
			sessions = redisCache
			summaries = redisCache
			locker = checkout.NewRedisLocker(redisCache.Client())
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	coordinator := checkout.New(repo, repo, repo, checkout.Options{
		Customer: checkout.CustomerPolicy{
			RequireName:  cfg.Customer.RequireName,
			RequirePhone: cfg.Customer.RequirePhone,
			PhoneDigits:  cfg.Customer.PhoneDigits,
			PhoneRegion:  cfg.Customer.PhoneRegion,
		},
		MaxAttempts: cfg.Checkout.PersistAttempts,
		Backoff:     cfg.RetryBackoff(),
		LockTTL:     time.Duration(cfg.Checkout.LockTTLSeconds) * time.Second,
		Locker:      locker,
		Logger:      logger,
	})
	reports := report.NewEngine(repo, summaries, cfg.SummaryCacheTTL(), loc, logger)
	svc := service.New(repo, policy, coordinator, reports, service.Options{
		Sessions:   sessions,
		SessionTTL: cfg.SessionTTL(),
		Logger:     logger,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go svc.SweepSessions(sweepCtx, 5*time.Minute)

	api := httpapi.New(svc, httpapi.NewAuthManager(cfg.AuthSecret, cfg.AuthIssuer), cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":         cfg.Address(),
			"tax_strategy": policy.Strategy(),
		}).Info("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	stopSweep()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Error("close error")
		}
	}

	logger.Info("server stopped")
}

// openRepository selects the backend named by STORE_BACKEND. A configured
// database that cannot be reached is fatal; there is no silent fallback to memory.
func openRepository(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Repository, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, pg.Close, nil

	case config.BackendMongo:
		if cfg.MongoURI == "" {
			return nil, nil, errors.New("STORE_BACKEND=mongo requires MONGO_URI")
		}
		mg, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		if err := mg.Migrate(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		logger.Info("repository: mongo")
		return mg, mg.Close, nil

	case config.BackendMemory, "":
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
