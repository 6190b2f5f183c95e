package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"gorm.io/gorm"
)

// The booking and billing flows own these tables; AutoMigrate only creates
// them when the engine runs against an empty database.
func createDirectoryTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_directory_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.UserModel{},
				&repository.StudentProfileModel{},
				&repository.ClassSessionModel{},
			); err != nil {
				return err
			}
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_class_sessions_active_date ON class_sessions (date, time) WHERE status IN ('scheduled', 'in_progress')`,
				`CREATE INDEX IF NOT EXISTS idx_student_profiles_trial_ends ON student_profiles (trial_ends_at) WHERE is_trial = true`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.ClassSessionModel{},
				&repository.StudentProfileModel{},
				&repository.UserModel{},
			)
		},
	}
}
