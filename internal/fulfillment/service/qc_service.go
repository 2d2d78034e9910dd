package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// QCService 质检服务。不合格或需复检的检验会锁定生产项，
// 后续一次合格且无需复检的检验自动解锁
type QCService struct {
	qcRepo      *repository.QCRepository
	itemRepo    *repository.ProductionItemRepository
	progressSvc *ProgressService
	minioClient *minio.Client
	bucketName  string
}

func NewQCService(qcRepo *repository.QCRepository, itemRepo *repository.ProductionItemRepository) *QCService {
	return &QCService{
		qcRepo:   qcRepo,
		itemRepo: itemRepo,
	}
}

// SetProgressService 注入进度聚合服务
func (s *QCService) SetProgressService(svc *ProgressService) {
	s.progressSvc = svc
}

// SetMinioClient 注入MinIO客户端（质检照片存储）
func (s *QCService) SetMinioClient(client *minio.Client, bucket string) {
	s.minioClient = client
	s.bucketName = bucket
}

// RecordInspectionRequest 记录检验请求
type RecordInspectionRequest struct {
	InspectionType       string            `json:"inspection_type"`
	QualityScore         *float64          `json:"quality_score"`
	DefectCount          int               `json:"defect_count"`
	DefectTypes          entity.JSONBArray `json:"defect_types"`
	PassFail             *bool             `json:"pass_fail"`
	CorrectiveAction     string            `json:"corrective_action"`
	ReinspectionRequired bool              `json:"reinspection_required"`
	Notes                string            `json:"notes"`
}

// RecordInspection 记录一次检验。不合格或需复检时锁定生产项；
// 合格且无需复检时解除已有锁定
func (s *QCService) RecordInspection(ctx context.Context, itemID, inspectorID string, req *RecordInspectionRequest) (*entity.QCInspection, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("生产项不存在")
	}

	inspType := req.InspectionType
	if inspType == "" {
		inspType = entity.InspectionTypeFinal
	}

	inspection := &entity.QCInspection{
		ID:                   uuid.New().String()[:32],
		OrderID:              item.OrderID,
		ItemID:               item.ID,
		Inspector:            inspectorID,
		InspectionType:       inspType,
		InspectedAt:          time.Now(),
		QualityScore:         req.QualityScore,
		DefectCount:          req.DefectCount,
		DefectTypes:          req.DefectTypes,
		PassFail:             req.PassFail,
		CorrectiveAction:     req.CorrectiveAction,
		ReinspectionRequired: req.ReinspectionRequired,
		Notes:                req.Notes,
	}

	if err := s.qcRepo.Create(ctx, inspection); err != nil {
		return nil, fmt.Errorf("创建质检记录失败: %w", err)
	}

	failed := req.PassFail != nil && !*req.PassFail
	passed := req.PassFail != nil && *req.PassFail

	if failed || req.ReinspectionRequired {
		if !item.QCLocked {
			item.QCLocked = true
			if err := s.itemRepo.Update(ctx, item); err != nil {
				return nil, fmt.Errorf("锁定生产项失败: %w", err)
			}
			s.invalidateProgress(ctx, item.OrderID)
		}
	} else if passed && item.QCLocked {
		// 后续检验合格且无需复检，隐式解锁
		item.QCLocked = false
		if err := s.itemRepo.Update(ctx, item); err != nil {
			return nil, fmt.Errorf("解除质检锁定失败: %w", err)
		}
		s.invalidateProgress(ctx, item.OrderID)
	}

	return inspection, nil
}

// GetInspection 获取检验详情
func (s *QCService) GetInspection(ctx context.Context, id string) (*entity.QCInspection, error) {
	return s.qcRepo.FindByID(ctx, id)
}

// ListInspections 查询检验列表
func (s *QCService) ListInspections(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.QCInspection, int64, error) {
	return s.qcRepo.FindAll(ctx, page, pageSize, filters)
}

// ListByItem 查询生产项的检验记录
func (s *QCService) ListByItem(ctx context.Context, itemID string) ([]entity.QCInspection, error) {
	return s.qcRepo.FindByItemID(ctx, itemID)
}

// AppendCorrectiveActionRequest 追加纠正措施请求
type AppendCorrectiveActionRequest struct {
	CorrectiveAction string `json:"corrective_action" binding:"required"`
}

// AppendCorrectiveAction 追加纠正措施（记录只追加，不删除）
func (s *QCService) AppendCorrectiveAction(ctx context.Context, inspectionID string, req *AppendCorrectiveActionRequest) (*entity.QCInspection, error) {
	inspection, err := s.qcRepo.FindByID(ctx, inspectionID)
	if err != nil {
		return nil, err
	}

	if inspection.CorrectiveAction == "" {
		inspection.CorrectiveAction = req.CorrectiveAction
	} else {
		inspection.CorrectiveAction = inspection.CorrectiveAction + "\n" + req.CorrectiveAction
	}

	if err := s.qcRepo.Update(ctx, inspection); err != nil {
		return nil, fmt.Errorf("更新质检记录失败: %w", err)
	}
	return inspection, nil
}

// AttachPhoto 上传质检照片并挂到检验记录
func (s *QCService) AttachPhoto(ctx context.Context, inspectionID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.QCInspection, error) {
	inspection, err := s.qcRepo.FindByID(ctx, inspectionID)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("qc/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	if s.minioClient != nil {
		_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return nil, fmt.Errorf("上传照片失败: %w", err)
		}
	}

	inspection.Photos = append(inspection.Photos, objectName)
	if err := s.qcRepo.Update(ctx, inspection); err != nil {
		return nil, fmt.Errorf("更新质检记录失败: %w", err)
	}
	return inspection, nil
}

func (s *QCService) invalidateProgress(ctx context.Context, orderID string) {
	if s.progressSvc != nil {
		s.progressSvc.Invalidate(ctx, orderID)
	}
}
