package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderRepository reads and writes orders and their quotation lines. Every
// successful write is announced on the change feed.
type OrderRepository struct {
	db     *gorm.DB
	feed   ChangeFeed
	logger *zap.Logger
}

var _ workflow.Store = (*OrderRepository)(nil)

// NewOrderRepository creates a repository. feed may be nil.
func NewOrderRepository(db *gorm.DB, feed ChangeFeed, logger *zap.Logger) *OrderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderRepository{db: db, feed: feed, logger: logger}
}

// GetOrder fetches an order with its lines in creation order.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return &order, nil
}

// CreateOrder inserts a new order.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit("Lines").Create(order).Error; err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	r.publish(ctx, order.ID, order.UpdatedAt, order.CurrentStatus)
	return nil
}

// UpdateOrderFields applies a partial update. A nil value writes NULL.
func (r *OrderRepository) UpdateOrderFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
	}

	updatedAt, _ := fields["updated_at"].(time.Time)
	status, _ := fields["current_status"].(string)
	r.publish(ctx, id, updatedAt, status)
	return nil
}

// ListLines returns the quotation lines of an order.
func (r *OrderRepository) ListLines(ctx context.Context, orderID string) ([]models.QuotationLine, error) {
	var lines []models.QuotationLine
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return lines, nil
}

// GetLine fetches one line, scoped to its order.
func (r *OrderRepository) GetLine(ctx context.Context, orderID, lineID string) (*models.QuotationLine, error) {
	var line models.QuotationLine
	err := r.db.WithContext(ctx).First(&line, "id = ? AND order_id = ?", lineID, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: line %s", workflow.ErrNotFound, lineID)
		}
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return &line, nil
}

func (r *OrderRepository) CreateLine(ctx context.Context, line *models.QuotationLine) error {
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return nil
}

// UpdateLineFields applies a partial update to one line.
func (r *OrderRepository) UpdateLineFields(ctx context.Context, orderID, lineID string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.QuotationLine{}).
		Where("id = ? AND order_id = ?", lineID, orderID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", workflow.ErrPersistence, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: line %s", workflow.ErrNotFound, lineID)
	}
	return nil
}

func (r *OrderRepository) DeleteLine(ctx context.Context, orderID, lineID string) error {
	result := r.db.WithContext(ctx).Where("id = ? AND order_id = ?", lineID, orderID).Delete(&models.QuotationLine{})
	if result.Error != nil {
		return fmt.Errorf("%w: %v", workflow.ErrPersistence, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: line %s", workflow.ErrNotFound, lineID)
	}
	return nil
}

// EquipmentFor loads equipment with its model, whose review fee new orders copy.
func (r *OrderRepository) EquipmentFor(ctx context.Context, equipmentID string) (*models.Equipment, error) {
	var equipment models.Equipment
	err := r.db.WithContext(ctx).Preload("Model").First(&equipment, "id = ?", equipmentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: equipment %s not found", workflow.ErrValidation, equipmentID)
		}
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return &equipment, nil
}

func (r *OrderRepository) CustomerFor(ctx context.Context, customerID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %s not found", workflow.ErrValidation, customerID)
		}
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return &customer, nil
}

func (r *OrderRepository) publish(ctx context.Context, id string, updatedAt time.Time, status string) {
	if r.feed == nil {
		return
	}
	change := OrderChange{OrderID: id, UpdatedAt: updatedAt, Status: status}
	if err := r.feed.Publish(ctx, change); err != nil {
		r.logger.Warn("Failed to publish order change", zap.String("order_id", id), zap.Error(err))
	}
}
