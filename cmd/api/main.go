package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snackorder/internal/cache"
	"snackorder/internal/config"
	"snackorder/internal/database"
	"snackorder/internal/handler"
	"snackorder/internal/logger"
	"snackorder/internal/metrics"
	"snackorder/internal/middleware"
	"snackorder/internal/payment"
	"snackorder/internal/repository"
	"snackorder/internal/service"
	"snackorder/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Snack Order API
// @version         1.0
// @description     Cart to order, budget approval and online payment for company snack purchases.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DSN(), zl)
	if err != nil {
		zl.Fatal("database connection failed", zap.Error(err))
	}
	zl.Info("connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zl)
	go wsHub.Run(ctx)

	// Cached reads live in redis; when it is down the service still runs and
	// only the dashboard notification is sent.
	invalidators := cache.Multi{cache.NewNotifier(wsHub)}
	var responseCache service.ResponseCache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zl.Warn("redis unavailable, response cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		redisCache := cache.NewRedis(rdb)
		invalidators = append(invalidators, redisCache)
		responseCache = redisCache
	}
	cancelPing()
	defer func() { _ = rdb.Close() }()

	coreMetrics := metrics.NewCore(prometheus.DefaultRegisterer)
	gateway := payment.NewClient(payment.Config{
		BaseURL:   cfg.PaymentBaseURL,
		SecretKey: cfg.PaymentSecretKey,
		Timeout:   cfg.PaymentTimeout,
	})

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	ledger := service.NewBudgetLedger(repository.NewBudgetRepository(db), cfg.BudgetTimezone, nil)
	cart := service.NewCartSnapshot(repository.NewCartRepository(db))
	compensator := service.NewCompensator(txManager, orderRepo, auditRepo, cart, zl)

	orderService := service.NewOrderService(txManager, orderRepo, productRepo, auditRepo, ledger, cart, invalidators, coreMetrics, zl)
	paymentService := service.NewPaymentService(txManager, orderRepo, paymentRepo, productRepo, auditRepo,
		ledger, gateway, compensator, invalidators, coreMetrics, zl)
	budgetService := service.NewBudgetService(ledger, responseCache, cache.Key, zl)
	auditService := service.NewAuditService(auditRepo)

	// Set up Gin Router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zl))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	secret := []byte(cfg.JWTSecret)
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret)
	})

	api := router.Group("", middleware.Authenticate(secret))
	handler.NewOrderHandler(orderService).RegisterRoutes(api)
	handler.NewPaymentHandler(paymentService).RegisterRoutes(api)
	handler.NewBudgetHandler(budgetService).RegisterRoutes(api)
	handler.NewAuditHandler(auditService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
