package repository

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	if err := db.AutoMigrate(
		&UserModel{},
		&StudentProfileModel{},
		&ClassSessionModel{},
		&NotificationModel{},
		&DeliveryRecordModel{},
		&NotificationPreferenceModel{},
		&DispatchMarkerModel{},
	); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func mustCreate(t *testing.T, db *gorm.DB, values ...any) {
	t.Helper()

	for _, v := range values {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("Create(%T) error = %v", v, err)
		}
	}
}

func loadSession(t *testing.T, db *gorm.DB, id string) domain.ClassSession {
	t.Helper()

	var model ClassSessionModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		t.Fatalf("load session %s: %v", id, err)
	}
	return *sessionModelToDomain(&model)
}

func loadNotifications(t *testing.T, db *gorm.DB, userID string) []domain.Notification {
	t.Helper()

	var models []NotificationModel
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		t.Fatalf("load notifications for %s: %v", userID, err)
	}
	out := make([]domain.Notification, 0, len(models))
	for i := range models {
		out = append(out, *notificationModelToDomain(&models[i]))
	}
	return out
}

func loadDeliveries(t *testing.T, db *gorm.DB, userID string) []domain.DeliveryRecord {
	t.Helper()

	var models []DeliveryRecordModel
	if err := db.Where("user_id = ?", userID).Find(&models).Error; err != nil {
		t.Fatalf("load deliveries for %s: %v", userID, err)
	}
	out := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		out = append(out, *deliveryModelToDomain(&models[i]))
	}
	return out
}
