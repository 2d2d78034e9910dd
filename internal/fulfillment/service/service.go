package service

import (
	"github.com/ethan273/limn-systems/internal/config"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/shared/accounting"
	"github.com/ethan273/limn-systems/internal/shared/carrier"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Production *ProductionService
	Progress   *ProgressService
	QC         *QCService
	Billing    *BillingService
	Shipping   *ShippingService
}

// NewServices 创建服务集合。外部集成（财务/承运商/MinIO/Redis）
// 按配置逐项启用，缺省时相关功能降级为本地行为
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config) *Services {
	productionSvc := NewProductionService(repos.Item, repos.Order)
	progressSvc := NewProgressService(repos.Item, repos.Order, repos.Quote)
	qcSvc := NewQCService(repos.QC, repos.Item)
	billingSvc := NewBillingService(repos.Order, repos.Item, repos.Invoice, repos.Queue, repos.SyncLog)
	shippingSvc := NewShippingService(db, repos.Quote, repos.QuoteAction, repos.Order)

	productionSvc.SetProgressService(progressSvc)
	qcSvc.SetProgressService(progressSvc)
	billingSvc.SetProgressService(progressSvc)
	shippingSvc.SetBillingService(billingSvc)

	if rdb != nil {
		progressSvc.SetRedisClient(rdb)
	}

	if cfg.Accounting.BaseURL != "" {
		billingSvc.SetAccountingGateway(accounting.NewClient(cfg.Accounting.BaseURL, cfg.Accounting.APIKey))
	}
	if cfg.Carrier.BaseURL != "" {
		shippingSvc.SetTrackingGateway(carrier.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.APIKey))
	}
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err == nil {
			qcSvc.SetMinioClient(minioClient, cfg.MinIO.Bucket)
		}
	}

	return &Services{
		Production: productionSvc,
		Progress:   progressSvc,
		QC:         qcSvc,
		Billing:    billingSvc,
		Shipping:   shippingSvc,
	}
}
