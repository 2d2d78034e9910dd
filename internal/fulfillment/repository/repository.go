package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 履约模块仓库集合
type Repositories struct {
	Order       *OrderRepository
	Item        *ProductionItemRepository
	QC          *QCRepository
	Invoice     *InvoiceRepository
	Queue       *QueueRepository
	SyncLog     *SyncLogRepository
	Quote       *QuoteRepository
	QuoteAction *QuoteActionRepository
}

// NewRepositories 创建履约模块仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:       NewOrderRepository(db),
		Item:        NewProductionItemRepository(db),
		QC:          NewQCRepository(db),
		Invoice:     NewInvoiceRepository(db),
		Queue:       NewQueueRepository(db),
		SyncLog:     NewSyncLogRepository(db),
		Quote:       NewQuoteRepository(db),
		QuoteAction: NewQuoteActionRepository(db),
	}
}
