package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachment is a photo taken of the equipment, stored in S3
type Attachment struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID     string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	S3Key       string    `gorm:"not null" json:"s3_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	URL         string    `gorm:"-" json:"url,omitempty"` // computed, presigned URL
	UploadedBy  string    `gorm:"type:varchar(36)" json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for the Attachment model
func (Attachment) TableName() string {
	return "attachments"
}

// BeforeCreate assigns an id when the caller did not
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
