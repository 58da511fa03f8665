package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer owns the equipment brought in for repair
type Customer struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"` // international format, used for WhatsApp links
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Customer model
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate assigns an id when the caller did not
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// EquipmentModel is a catalog entry; its review fee is copied onto new orders
type EquipmentModel struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Brand     string          `gorm:"not null" json:"brand"`
	Name      string          `gorm:"not null" json:"name"`
	ReviewFee decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"review_fee"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the EquipmentModel model
func (EquipmentModel) TableName() string {
	return "equipment_models"
}

// BeforeCreate assigns an id when the caller did not
func (m *EquipmentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Equipment is a customer's device identified by serial number
type Equipment struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CustomerID   string         `gorm:"type:varchar(36);not null;index" json:"customer_id"`
	ModelID      string         `gorm:"type:varchar(36);not null;index" json:"model_id"`
	Model        EquipmentModel `gorm:"foreignKey:ModelID" json:"model"`
	SerialNumber string         `json:"serial_number"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the Equipment model
func (Equipment) TableName() string {
	return "equipment"
}

// BeforeCreate assigns an id when the caller did not
func (e *Equipment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
