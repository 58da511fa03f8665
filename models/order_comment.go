package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment kinds
const (
	CommentKindRetreat = "retreat"
	CommentKindNote    = "note"
)

// OrderComment is an entry in an order's comment log. Retreats always leave one
// recording the statuses involved and the reason given.
type OrderComment struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID    string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Kind       string    `gorm:"not null;default:'note'" json:"kind"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	AuthorID   string    `gorm:"type:varchar(36)" json:"author_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for the OrderComment model
func (OrderComment) TableName() string {
	return "order_comments"
}

// BeforeCreate assigns an id when the caller did not
func (c *OrderComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
