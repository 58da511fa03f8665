package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is a customer repair order moving through the shop workflow.
//
// CurrentStatus holds the stored workflow status string (see workflow.ParseStatus).
// Phase stamps and technician ids are nullable: a nil end stamp means the
// phase has not been exited since it was last (re-)entered.
type Order struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code          string `gorm:"uniqueIndex;not null" json:"code"`
	CustomerID    string `gorm:"type:varchar(36);not null;index" json:"customer_id"`
	EquipmentID   string `gorm:"type:varchar(36);not null;index" json:"equipment_id"`
	CurrentStatus string `gorm:"not null;default:'reception';index" json:"current_status"`

	StartReception *time.Time `json:"start_reception"`
	EndReception   *time.Time `json:"end_reception"`
	TechReception  *string    `gorm:"type:varchar(36)" json:"tech_reception"`

	StartDiagnosis *time.Time `json:"start_diagnosis"`
	EndDiagnosis   *time.Time `json:"end_diagnosis"`
	TechDiagnosis  *string    `gorm:"type:varchar(36)" json:"tech_diagnosis"`

	StartQuotation   *time.Time `json:"start_quotation"`
	ApprovalDate     *time.Time `json:"approval_date"`
	TechQuotation    *string    `gorm:"type:varchar(36)" json:"tech_quotation"`
	PartsRequestedAt *time.Time `json:"parts_requested_at"`
	PartsReceivedAt  *time.Time `json:"parts_received_at"`
	QuoteSentAt      *time.Time `json:"quote_sent_at"`
	ClientApproved   *bool      `json:"client_approved"` // nil until the client answers the quote
	ClientDecisionAt *time.Time `json:"client_decision_at"`

	StartRepair *time.Time `json:"start_repair"`
	EndRepair   *time.Time `json:"end_repair"`
	TechRepair  *string    `gorm:"type:varchar(36)" json:"tech_repair"`

	DeliveryDate *time.Time `json:"delivery_date"`
	TechDelivery *string    `gorm:"type:varchar(36)" json:"tech_delivery"`

	Total         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	ShippingPrice decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping_price"`
	ReviewFee     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"review_fee"` // carried from the equipment model
	Note          string          `gorm:"type:text" json:"note"`
	IsRework      bool            `gorm:"not null;default:false" json:"is_rework"`

	CreatedBy string    `gorm:"type:varchar(36)" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []QuotationLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns an id when the caller did not
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// Clone returns a copy of the order that shares no pointers with the receiver.
func (o *Order) Clone() *Order {
	c := *o
	c.StartReception = cloneTime(o.StartReception)
	c.EndReception = cloneTime(o.EndReception)
	c.TechReception = cloneString(o.TechReception)
	c.StartDiagnosis = cloneTime(o.StartDiagnosis)
	c.EndDiagnosis = cloneTime(o.EndDiagnosis)
	c.TechDiagnosis = cloneString(o.TechDiagnosis)
	c.StartQuotation = cloneTime(o.StartQuotation)
	c.ApprovalDate = cloneTime(o.ApprovalDate)
	c.TechQuotation = cloneString(o.TechQuotation)
	c.PartsRequestedAt = cloneTime(o.PartsRequestedAt)
	c.PartsReceivedAt = cloneTime(o.PartsReceivedAt)
	c.QuoteSentAt = cloneTime(o.QuoteSentAt)
	c.ClientDecisionAt = cloneTime(o.ClientDecisionAt)
	c.StartRepair = cloneTime(o.StartRepair)
	c.EndRepair = cloneTime(o.EndRepair)
	c.TechRepair = cloneString(o.TechRepair)
	c.DeliveryDate = cloneTime(o.DeliveryDate)
	c.TechDelivery = cloneString(o.TechDelivery)
	if o.ClientApproved != nil {
		v := *o.ClientApproved
		c.ClientApproved = &v
	}
	if o.Lines != nil {
		c.Lines = append([]QuotationLine(nil), o.Lines...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
