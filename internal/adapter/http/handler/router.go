package handler

import (
	"banking-ledger/internal/adapter/http/middleware"
	"banking-ledger/internal/core/ports"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc     ports.AccountService
	TransferSvc    ports.TransferService
	HistorySvc     ports.HistoryService
	RateLimiter    ports.RateLimiter       // nil = rate limiting disabled
	RateLimitPaths *middleware.PathMatcher // required when RateLimiter is set
	ClientKeys     middleware.KeySource    // empty = key by client IP
	CORS           *cors.Config            // nil = CORS disabled
	AuditSvc       ports.AuditService      // nil = audit logging disabled
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.CORS != nil {
		// Preflights are answered here, ahead of the limiter.
		r.Use(cors.New(*deps.CORS))
	}
	r.Use(middleware.MaxBodySize(maxBody))
	r.Use(middleware.ClientIdentity(deps.ClientKeys))

	if deps.RateLimiter != nil && deps.RateLimitPaths != nil {
		r.Use(middleware.RateLimit(deps.RateLimiter, deps.RateLimitPaths, deps.Logger))
	}
	// Registered after the limiter: throttled requests never reach audit.
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	api := r.Group("/api")

	accountHandler := NewAccountHandler(deps.AccountSvc)
	accounts := api.Group("/accounts")
	{
		accounts.POST("", accountHandler.CreateAccount)
		accounts.GET("", accountHandler.ListAccounts)
		accounts.GET("/:userId", accountHandler.GetAccount)
	}

	txHandler := NewTransactionHandler(deps.TransferSvc, deps.HistorySvc)
	transactions := api.Group("/transactions")
	{
		transactions.POST("/transfer", txHandler.Transfer)
		transactions.GET("/history/:accountId", txHandler.GetHistory)
	}

	return r
}
