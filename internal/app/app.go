// Package app assembles the ledger service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"banking-ledger/config"
	httpHandler "banking-ledger/internal/adapter/http/handler"
	"banking-ledger/internal/adapter/http/middleware"
	"banking-ledger/internal/adapter/messaging/kafka"
	memStorage "banking-ledger/internal/adapter/storage/memory"
	pgStorage "banking-ledger/internal/adapter/storage/postgres"
	redisStorage "banking-ledger/internal/adapter/storage/redis"
	"banking-ledger/internal/core/ports"
	"banking-ledger/internal/ratelimit"
	"banking-ledger/internal/scheduler"
	"banking-ledger/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const auditDrainTimeout = 5 * time.Second

// App is a fully wired ledger service.
type App struct {
	Router *gin.Engine
	Server *http.Server

	cfg       *config.Config
	scheduler *scheduler.Scheduler
	recovery  *service.RecoveryServiceImpl
	audit     *service.AuditServiceImpl
	publisher *kafka.TransferPublisher
	redis     *goredis.Client
	pool      *pgxpool.Pool
	log       zerolog.Logger
}

type storage struct {
	accounts     ports.AccountRepository
	transactions ports.TransactionRepository
	audit        ports.AuditRepository
	transactor   ports.DBTransactor
	health       ports.HealthChecker
}

// New connects every configured backend and builds the HTTP router. On error
// anything already opened is closed again.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	if err := a.build(ctx); err != nil {
		_ = a.closeBackends()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	healthCheckers := []ports.HealthChecker{store.health}

	var idempCache ports.IdempotencyCache
	if cfg.Redis.Enabled {
		a.redis, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		idempCache = redisStorage.NewIdempotencyCache(a.redis)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(a.redis))
	}

	limiter, sweeper, err := a.newRateLimiter()
	if err != nil {
		return err
	}
	var paths *middleware.PathMatcher
	if limiter != nil {
		if paths, err = middleware.NewPathMatcher(cfg.RateLimit.Paths); err != nil {
			return fmt.Errorf("rate_limit.paths: %w", err)
		}
	}

	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled {
		a.publisher, err = kafka.NewTransferPublisher(cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		publisher = a.publisher
	}

	accountSvc := service.NewAccountService(store.accounts, log)
	transferSvc := service.NewTransferService(
		store.accounts,
		store.transactions,
		store.transactor,
		idempCache,
		publisher,
		service.TransferOptions{
			MaxRetries:      cfg.Transfer.MaxRetries,
			RetryBackoff:    cfg.Transfer.RetryBackoff,
			FinalizeTimeout: cfg.Transfer.FinalizeTimeout,
			IdempotencyTTL:  cfg.Transfer.IdempotencyTTL,
		},
		log,
	)
	historySvc := service.NewHistoryService(store.accounts, store.transactions)
	a.recovery = service.NewRecoveryService(store.transactions, store.transactor, publisher, log)

	var auditSvc ports.AuditService
	if cfg.Audit.Enabled {
		a.audit, err = service.NewAuditService(store.audit, cfg.Audit.Workers, log)
		if err != nil {
			return fmt.Errorf("creating audit pool: %w", err)
		}
		auditSvc = a.audit
	}

	if cfg.Scheduler.Enabled {
		jobs := &scheduler.Jobs{
			Recovery:       a.recovery,
			PendingTimeout: cfg.Transfer.PendingTimeout,
			Log:            log,
		}
		if sweeper != nil {
			jobs.Sweeper = sweeper
		}
		a.scheduler = scheduler.New(jobs, cfg.Scheduler.SweepSchedule, cfg.Scheduler.RecoverySchedule, log)
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	routerDeps := httpHandler.RouterDeps{
		AccountSvc:     accountSvc,
		TransferSvc:    transferSvc,
		HistorySvc:     historySvc,
		RateLimitPaths: paths,
		ClientKeys:     middleware.KeySource(cfg.RateLimit.KeySource),
		CORS:           corsConfig(cfg.CORS),
		AuditSvc:       auditSvc,
		HealthCheckers: healthCheckers,
		Logger:         log,
	}
	if limiter != nil {
		routerDeps.RateLimiter = limiter
	}
	a.Router = httpHandler.SetupRouter(routerDeps)

	a.Server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

func (a *App) openStorage(ctx context.Context) (*storage, error) {
	if a.cfg.Storage.Driver == "memory" {
		a.log.Warn().Msg("using in-memory ledger store, data is lost on exit")
		store := memStorage.NewStore()
		return &storage{
			accounts:     memStorage.NewAccountRepo(store),
			transactions: memStorage.NewTransactionRepo(store),
			audit:        memStorage.NewAuditRepo(store),
			transactor:   memStorage.NewTransactor(store),
			health:       memStorage.NewHealthCheck(),
		}, nil
	}

	if a.cfg.Database.AutoMigrate {
		if err := pgStorage.RunMigrations(a.cfg.Database.DSN(), a.cfg.Database.MigrationsPath, a.log); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := pgStorage.NewPool(ctx, a.cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool
	return &storage{
		accounts:     pgStorage.NewAccountRepo(pool),
		transactions: pgStorage.NewTransactionRepo(pool),
		audit:        pgStorage.NewAuditRepo(pool),
		transactor:   pgStorage.NewTransactor(pool),
		health:       pgStorage.NewHealthCheck(pool),
	}, nil
}

// newRateLimiter returns nil, nil, nil when rate limiting is off. The sweeper
// is only set for the process-local limiter.
func (a *App) newRateLimiter() (ports.RateLimiter, scheduler.Sweeper, error) {
	rl := a.cfg.RateLimit
	if !rl.Enabled {
		return nil, nil, nil
	}
	if rl.Backend == "redis" {
		if a.redis == nil {
			return nil, nil, errors.New("rate_limit.backend redis requires redis.enabled")
		}
		return redisStorage.NewRateLimitStore(a.redis, rl.Capacity, rl.RefillInterval), nil, nil
	}
	limiter, err := ratelimit.NewMemoryLimiter(rl.Capacity, rl.RefillInterval, ratelimit.WithRefill(rl.Refill))
	if err != nil {
		return nil, nil, fmt.Errorf("creating rate limiter: %w", err)
	}
	return limiter, limiter, nil
}

// Start finalizes transfers a previous process left PENDING and starts the
// scheduled jobs. It does not start the HTTP server.
func (a *App) Start(ctx context.Context) error {
	n, err := a.recovery.ReconcilePending(ctx, a.cfg.Transfer.PendingTimeout)
	if err != nil {
		a.log.Error().Err(err).Msg("startup recovery failed")
	} else if n > 0 {
		a.log.Warn().Int("recovered", n).Msg("finalized transfers left pending by a previous run")
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}
	return nil
}

// Shutdown stops the server first, then background work, then closes
// backends.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if a.scheduler != nil {
		select {
		case <-a.scheduler.Stop().Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("scheduler: %w", ctx.Err()))
		}
	}
	if err := a.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeBackends() error {
	var errs []error
	if a.audit != nil {
		if err := a.audit.Close(auditDrainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("audit pool: %w", err))
		}
		a.audit = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka publisher: %w", err))
		}
		a.publisher = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}

func corsConfig(c config.CORSConfig) *cors.Config {
	if !c.Enabled {
		return nil
	}
	return &cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}
