package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/models"
)

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&models.Permission{},
		&models.Role{},
		&models.Employee{},
		&models.AccessPolicy{},
		&models.TrainingRequirement{},
		&models.UserTrainingRecord{},
		&models.AccessGrant{},
		&models.ApprovalRequest{},
		&models.WhitelistedIP{},
		&models.APIKey{},
		&models.AuditEvent{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
