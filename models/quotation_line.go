package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuotationLine is a spare part or service line on an order's quotation
type QuotationLine struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID     string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Code        string          `gorm:"not null" json:"code"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_price"`
	DiscountPct decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"discount_pct"`
	VATPct      decimal.Decimal `gorm:"column:vat_pct;type:numeric(5,2);not null;default:0" json:"vat_pct"`
	InStock     bool            `gorm:"not null;default:false" json:"in_stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the QuotationLine model
func (QuotationLine) TableName() string {
	return "quotation_lines"
}

// BeforeCreate assigns an id when the caller did not
func (l *QuotationLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
