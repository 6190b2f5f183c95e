package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"gorm.io/gorm"
)

func createPreferencesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_notification_preferences",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.NotificationPreferenceModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationPreferenceModel{})
		},
	}
}
