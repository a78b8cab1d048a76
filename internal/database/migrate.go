package database

import (
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
)

// AutoMigrate creates or updates the tables and partial unique indexes used by the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Enrollment{},
		&models.AssistanceRequest{},
		&models.HallPassRequest{},
	)
}
