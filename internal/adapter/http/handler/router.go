package handler

import (
	"marketplace-ledger/internal/adapter/http/middleware"
	redisStore "marketplace-ledger/internal/adapter/storage/redis"
	"marketplace-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	OrderSvc       ports.OrderService
	RechargeSvc    ports.RechargeService
	WithdrawalSvc  ports.WithdrawalService
	VipSvc         ports.VipService
	AttendanceSvc  ports.AttendanceService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep; verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	merchantOnly := middleware.RequireRoles(middleware.RoleMerchant)
	adminOnly := middleware.RequireRoles(middleware.RoleAdmin)
	anyRole := middleware.RequireRoles(middleware.RoleMerchant, middleware.RoleAdmin)

	v1 := r.Group("/api/v1", jwtAuth)

	orderHandler := NewOrderHandler(deps.OrderSvc)
	orders := v1.Group("/orders")
	{
		orders.POST("/dispatch", adminOnly, rl("orders"), orderHandler.Dispatch)
		orders.POST("/dispatch-bulk", adminOnly, rl("orders"), orderHandler.DispatchBulk)
		orders.PUT("/bulk-ship", adminOnly, rl("orders"), orderHandler.BulkShip)
		orders.PUT("/bulk-complete", adminOnly, rl("orders"), orderHandler.BulkComplete)
		orders.PUT("/:id/pickup", merchantOnly, rl("orders"), orderHandler.Pickup)
		orders.PUT("/:id/confirm-profit", adminOnly, rl("orders"), orderHandler.ConfirmProfit)
		orders.PUT("/:id/cancel", adminOnly, rl("orders"), orderHandler.Cancel)
		orders.GET("", adminOnly, rl("orders"), orderHandler.List)
		orders.GET("/my", merchantOnly, rl("orders"), orderHandler.ListMine)
		orders.GET("/:id", anyRole, rl("orders"), orderHandler.Get)
	}

	walletHandler := NewWalletHandler(deps.LedgerSvc)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", merchantOnly, rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/entries", merchantOnly, rl("wallet"), walletHandler.ListEntries)
		wallet.POST("/adjust", adminOnly, rl("wallet"), walletHandler.Adjust)
	}

	rechargeHandler := NewRechargeHandler(deps.RechargeSvc)
	recharges := v1.Group("/recharges")
	{
		recharges.POST("", merchantOnly, rl("recharges"), rechargeHandler.Submit)
		recharges.PUT("/:id/review", adminOnly, rl("recharges"), rechargeHandler.Review)
		recharges.GET("", anyRole, rl("recharges"), rechargeHandler.List)
	}

	withdrawalHandler := NewWithdrawalHandler(deps.WithdrawalSvc)
	withdrawals := v1.Group("/withdrawals")
	{
		withdrawals.POST("", merchantOnly, rl("withdrawals"), withdrawalHandler.Submit)
		withdrawals.PUT("/:id/approve", adminOnly, rl("withdrawals"), withdrawalHandler.Approve)
		withdrawals.PUT("/:id/cancel", adminOnly, rl("withdrawals"), withdrawalHandler.Cancel)
		withdrawals.GET("", anyRole, rl("withdrawals"), withdrawalHandler.List)
	}

	vipHandler := NewVipHandler(deps.VipSvc)
	vip := v1.Group("/vip")
	{
		vip.GET("/levels", anyRole, rl("vip"), vipHandler.Levels)
		vip.POST("/applications", merchantOnly, rl("vip"), vipHandler.Apply)
		vip.PUT("/applications/:id/review", adminOnly, rl("vip"), vipHandler.Review)
		vip.GET("/applications", anyRole, rl("vip"), vipHandler.ListApplications)
	}

	attendanceHandler := NewAttendanceHandler(deps.AttendanceSvc)
	v1.POST("/attendance/sign-in", merchantOnly, rl("attendance"), attendanceHandler.SignIn)

	return r
}
