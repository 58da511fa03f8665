package services

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"gorm.io/gorm"
)

// CommentLog stores order comments, including the reason of every retreat.
type CommentLog struct {
	db *gorm.DB
}

var _ workflow.CommentLogger = (*CommentLog)(nil)

func NewCommentLog(db *gorm.DB) *CommentLog {
	return &CommentLog{db: db}
}

// LogRetreat records why an order went back a phase.
func (l *CommentLog) LogRetreat(ctx context.Context, c workflow.RetreatComment) (string, error) {
	comment := models.OrderComment{
		OrderID:    c.OrderID,
		Kind:       models.CommentKindRetreat,
		FromStatus: c.From,
		ToStatus:   c.To,
		Text:       c.Reason,
		AuthorID:   c.Author,
	}
	if err := l.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return "", fmt.Errorf("failed to save retreat comment: %w", err)
	}
	return comment.ID, nil
}

// DiscardRetreat removes a retreat comment by id.
func (l *CommentLog) DiscardRetreat(ctx context.Context, id string) error {
	err := l.db.WithContext(ctx).
		Where("id = ? AND kind = ?", id, models.CommentKindRetreat).
		Delete(&models.OrderComment{}).Error
	if err != nil {
		return fmt.Errorf("failed to discard retreat comment: %w", err)
	}
	return nil
}

// List returns an order's comments, oldest first.
func (l *CommentLog) List(ctx context.Context, orderID string) ([]models.OrderComment, error) {
	var comments []models.OrderComment
	err := l.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return comments, nil
}
