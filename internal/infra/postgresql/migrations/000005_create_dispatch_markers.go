package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"gorm.io/gorm"
)

func createDispatchMarkersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_dispatch_markers",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.DispatchMarkerModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchMarkerModel{})
		},
	}
}
