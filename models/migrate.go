package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table. Used in development and tests;
// deployed databases are migrated with cmd/migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Customer{},
		&EquipmentModel{},
		&Equipment{},
		&Order{},
		&QuotationLine{},
		&OrderComment{},
		&Attachment{},
	)
}
