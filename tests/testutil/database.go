package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory sqlite database with every table
// migrated. Connections of the same test share it; other tests never see it.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	RequireTestEnvironment(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get test database: %v", err)
	}
	// One connection keeps the shared in-memory database alive and avoids
	// table locks between the debouncer and the test goroutine.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// Fixture is a customer with one piece of equipment
type Fixture struct {
	Customer  models.Customer
	Model     models.EquipmentModel
	Equipment models.Equipment
	Tech      models.User
}

// Seed inserts a technician, a customer and their equipment. The equipment
// model's review fee is 50.
func Seed(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()

	f := &Fixture{
		Customer: models.Customer{Name: "Ana Rojas", Email: "ana@example.com", Phone: "+56 9 1234 5678"},
		Model:    models.EquipmentModel{Brand: "Makita", Name: "HP457D", ReviewFee: decimal.NewFromInt(50)},
		Tech:     models.User{Auth0ID: "auth0|tech-" + uuid.NewString()[:8], Name: "Tech One", Email: uuid.NewString()[:8] + "@shop.example.com", Role: models.RoleTechnician},
	}
	mustCreate(t, db, &f.Customer)
	mustCreate(t, db, &f.Model)
	mustCreate(t, db, &f.Tech)

	f.Equipment = models.Equipment{CustomerID: f.Customer.ID, ModelID: f.Model.ID, SerialNumber: "SN-001"}
	mustCreate(t, db, &f.Equipment)
	return f
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed %T: %v", value, err)
	}
}
