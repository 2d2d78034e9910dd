package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethan273/limn-systems/internal/config"
	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/handler"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/ethan273/limn-systems/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	zapLogger.Info("Starting limn fulfillment service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 履约表迁移
	if err := db.AutoMigrate(
		&entity.Order{},
		&entity.ProductionItem{},
		&entity.QCInspection{},
		&entity.Invoice{},
		&entity.InvoiceQueueEntry{},
		&entity.SyncLog{},
		&entity.ShippingQuote{},
		&entity.ShippingQuoteAction{},
	); err != nil {
		zapLogger.Warn("AutoMigrate fulfillment tables warning", zap.Error(err))
	}

	// 并发兜底的部分唯一索引：
	// 每个订单至多一张非作废发票；同一订单同一动作至多一个pending队列条目
	migrationSQL := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_active_order ON invoices(order_id) WHERE status <> 'void'",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_invoice_queue_pending ON invoice_queue_entries(entity_id, action) WHERE status = 'pending'",
		"CREATE INDEX IF NOT EXISTS idx_production_items_order_stage ON production_items(order_id, current_stage)",
		"CREATE INDEX IF NOT EXISTS idx_shipping_quotes_order_status ON shipping_quotes(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sync_logs_type_created ON sync_logs(sync_type, created_at DESC)",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration warning", zap.String("sql", sql), zap.Error(err))
		}
	}
	zapLogger.Info("Fulfillment database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, progress cache disabled", zap.Error(err))
		rdb = nil
	}

	// 仓库、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, rdb, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 订单与财务阶段
			orders := authorized.Group("/orders")
			{
				orders.POST("", h.Order.Create)
				orders.GET("", h.Order.List)
				orders.POST("/bulk-invoice", middleware.RequirePermission("fulfillment:invoice"), h.Order.BulkInvoice)
				orders.GET("/:id", h.Order.Get)
				orders.GET("/:id/progress", h.Order.GetProgress)
				orders.GET("/:id/summary", h.Order.GetSummary)
				orders.POST("/:id/mark-ready", h.Order.MarkReady)
				orders.POST("/:id/unmark-ready", h.Order.UnmarkReady)
				orders.POST("/:id/queue-invoice", middleware.RequirePermission("fulfillment:invoice"), h.Order.QueueInvoice)
				orders.GET("/:id/queue-status", h.Order.GetQueueStatus)
				orders.POST("/:id/complete", h.Order.Complete)

				// 生产项
				orders.POST("/:id/items", h.Production.CreateItem)
				orders.GET("/:id/items", h.Production.ListItems)

				// 运输报价
				orders.POST("/:id/shipping-quotes", h.Shipping.Create)
			}

			// 生产工序与质检
			items := authorized.Group("/production-items")
			{
				items.GET("/:id", h.Production.GetItem)
				items.POST("/:id/advance", h.Production.AdvanceStage)
				items.PUT("/:id/progress", h.Production.UpdateProgress)
				items.POST("/:id/inspections", h.QC.RecordInspection)
				items.GET("/:id/inspections", h.QC.ListByItem)
			}

			inspections := authorized.Group("/inspections")
			{
				inspections.GET("", h.QC.List)
				inspections.GET("/:id", h.QC.Get)
				inspections.POST("/:id/corrective-action", h.QC.AppendCorrectiveAction)
				inspections.POST("/:id/photos", h.QC.UploadPhoto)
			}

			// 发票与开票队列
			invoices := authorized.Group("/invoices")
			{
				invoices.GET("", h.Order.ListInvoices)
				invoices.GET("/:id", h.Order.GetInvoice)
			}

			queue := authorized.Group("/invoice-queue")
			{
				queue.GET("", h.Order.ListQueue)
				queue.POST("/:id/process", middleware.RequirePermission("fulfillment:invoice"), h.Order.ProcessQueueEntry)
			}

			// 同步日志
			authorized.GET("/sync-logs", h.Order.ListSyncLogs)

			// 运输报价
			quotes := authorized.Group("/shipping-quotes")
			{
				quotes.GET("", h.Shipping.List)
				quotes.GET("/:id", h.Shipping.Get)
				quotes.PUT("/:id/quote", h.Shipping.Submit)
				quotes.POST("/:id/actions", h.Shipping.PerformAction)
				quotes.PUT("/:id/shipment-status", h.Shipping.UpdateShipmentStatus)
			}
		}
	}
}
