package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttachmentService stores equipment photos taken at intake and keeps their
// keys on the order.
type AttachmentService struct {
	db     *gorm.DB
	photos PhotoStore
	logger *zap.Logger
}

func NewAttachmentService(db *gorm.DB, photos PhotoStore, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{db: db, photos: photos, logger: logger}
}

// photoKey is orders/{order id}/{uuid}{ext}; the uploaded file name lives on the row.
func photoKey(orderID, filename string) string {
	return fmt.Sprintf("orders/%s/%s%s", orderID, uuid.NewString(), strings.ToLower(filepath.Ext(filename)))
}

// Upload validates and stores one photo for the order.
func (s *AttachmentService) Upload(ctx context.Context, orderID, uploader string, fileHeader *multipart.FileHeader) (*models.Attachment, error) {
	contentType, err := utils.InspectPhoto(fileHeader)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, orderID)
	}

	key := photoKey(orderID, fileHeader.Filename)
	if err := s.photos.Put(ctx, key, contentType, fileHeader); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	attachment := &models.Attachment{
		OrderID:     orderID,
		S3Key:       key,
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		UploadedBy:  uploader,
	}
	if err := s.db.WithContext(ctx).Create(attachment).Error; err != nil {
		if delErr := s.photos.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("s3_key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}

	attachment.URL, _ = s.photos.PresignedURL(ctx, key)
	return attachment, nil
}

// List returns the order's photos with fresh presigned URLs.
func (s *AttachmentService) List(ctx context.Context, orderID string) ([]models.Attachment, error) {
	var attachments []models.Attachment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	for i := range attachments {
		url, err := s.photos.PresignedURL(ctx, attachments[i].S3Key)
		if err != nil {
			s.logger.Warn("Failed to presign attachment", zap.String("s3_key", attachments[i].S3Key), zap.Error(err))
			continue
		}
		attachments[i].URL = url
	}
	return attachments, nil
}
