package repository

import (
	"strings"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/datatypes"
)

// ClassSessionModel is the persistence model for class_sessions. The table is
// owned by the booking flow.
type ClassSessionModel struct {
	ID              string               `gorm:"type:varchar(64);primaryKey"`
	StudentID       string               `gorm:"type:varchar(64);not null"`
	TeacherID       string               `gorm:"type:varchar(64);not null"`
	Date            string               `gorm:"type:varchar(10);not null"`
	Time            string               `gorm:"type:varchar(8);not null"`
	DurationMinutes int                  `gorm:"not null"`
	MeetingLink     string               `gorm:"type:text"`
	IsTrial         bool                 `gorm:"not null"`
	Status          domain.SessionStatus `gorm:"type:varchar(20);not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ClassSessionModel) TableName() string {
	return "class_sessions"
}

// UserModel is the contact projection of the users table.
type UserModel struct {
	ID       string      `gorm:"type:varchar(64);primaryKey"`
	FullName string      `gorm:"type:varchar(255);not null"`
	Email    string      `gorm:"type:varchar(255)"`
	Phone    string      `gorm:"type:varchar(32)"`
	Language string      `gorm:"type:varchar(8)"`
	Role     domain.Role `gorm:"type:varchar(16);not null"`
}

func (UserModel) TableName() string {
	return "users"
}

// StudentProfileModel is the billing projection of a student.
type StudentProfileModel struct {
	UserID           string `gorm:"type:varchar(64);primaryKey"`
	RemainingLessons int    `gorm:"not null"`
	IsTrial          bool   `gorm:"not null"`
	TrialEndsAt      *time.Time
}

func (StudentProfileModel) TableName() string {
	return "student_profiles"
}

// NotificationModel is the persistence model for in-app notifications.
type NotificationModel struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	UserID           string            `gorm:"type:varchar(64);not null;index"`
	Type             domain.Kind       `gorm:"type:varchar(32);not null"`
	Title            string            `gorm:"type:varchar(255);not null"`
	Message          string            `gorm:"type:text;not null"`
	RelatedSessionID *string           `gorm:"type:varchar(64)"`
	DedupeKey        *string           `gorm:"type:varchar(255);uniqueIndex"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	Read             bool              `gorm:"not null"`
	CreatedAt        time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryRecordModel is the persistence model for notification_deliveries.
type DeliveryRecordModel struct {
	ID               string                `gorm:"type:uuid;primaryKey"`
	UserID           string                `gorm:"type:varchar(64);not null"`
	NotificationID   *string               `gorm:"type:uuid;index"`
	Channel          domain.Channel        `gorm:"type:varchar(16);not null"`
	RecipientAddress string                `gorm:"type:varchar(255);not null"`
	RenderedSubject  string                `gorm:"type:varchar(255)"`
	RenderedBody     string                `gorm:"type:text;not null"`
	Status           domain.DeliveryStatus `gorm:"type:varchar(16);not null"`
	SentAt           *time.Time
	ErrorMessage     *string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DeliveryRecordModel) TableName() string {
	return "notification_deliveries"
}

// NotificationPreferenceModel is the persistence model for
// notification_preferences. LeadTimes is a comma separated list of lead keys.
type NotificationPreferenceModel struct {
	UserID                string `gorm:"type:varchar(64);primaryKey"`
	InAppEnabled          bool   `gorm:"not null"`
	EmailEnabled          bool   `gorm:"not null"`
	SMSEnabled            bool   `gorm:"column:sms_enabled;not null"`
	WhatsAppEnabled       bool   `gorm:"column:whatsapp_enabled;not null"`
	ClassRemindersEnabled bool   `gorm:"not null"`
	MessagesEnabled       bool   `gorm:"not null"`
	SystemUpdatesEnabled  bool   `gorm:"not null"`
	LeadTimes             string `gorm:"type:varchar(64)"`
	Language              string `gorm:"type:varchar(8)"`
	UpdatedAt             time.Time
}

func (NotificationPreferenceModel) TableName() string {
	return "notification_preferences"
}

// DispatchMarkerModel is the persistence model for dispatch_markers.
type DispatchMarkerModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	SubjectID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_dispatch_markers_identity"`
	UserID    string `gorm:"type:varchar(64);not null;uniqueIndex:idx_dispatch_markers_identity"`
	Key       string `gorm:"column:marker_key;type:varchar(64);not null;uniqueIndex:idx_dispatch_markers_identity"`
	CreatedAt time.Time
}

func (DispatchMarkerModel) TableName() string {
	return "dispatch_markers"
}

func sessionModelToDomain(m *ClassSessionModel) *domain.ClassSession {
	if m == nil {
		return nil
	}

	return &domain.ClassSession{
		ID:              m.ID,
		StudentID:       m.StudentID,
		TeacherID:       m.TeacherID,
		Date:            m.Date,
		Time:            m.Time,
		DurationMinutes: m.DurationMinutes,
		MeetingLink:     m.MeetingLink,
		IsTrial:         m.IsTrial,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:       m.ID,
		FullName: m.FullName,
		Email:    m.Email,
		Phone:    m.Phone,
		Language: m.Language,
		Role:     m.Role,
	}
}

func studentModelToDomain(m *StudentProfileModel) *domain.StudentProfile {
	if m == nil {
		return nil
	}

	return &domain.StudentProfile{
		UserID:           m.UserID,
		RemainingLessons: m.RemainingLessons,
		IsTrial:          m.IsTrial,
		TrialEndsAt:      m.TrialEndsAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:               n.ID,
		UserID:           n.UserID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		RelatedSessionID: n.RelatedSessionID,
		DedupeKey:        n.DedupeKey,
		Metadata:         datatypes.JSONMap(n.Metadata),
		Read:             n.Read,
		CreatedAt:        n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:               m.ID,
		UserID:           m.UserID,
		Type:             m.Type,
		Title:            m.Title,
		Message:          m.Message,
		RelatedSessionID: m.RelatedSessionID,
		DedupeKey:        m.DedupeKey,
		Metadata:         map[string]any(m.Metadata),
		Read:             m.Read,
		CreatedAt:        m.CreatedAt,
	}
}

func deliveryModelFromDomain(d *domain.DeliveryRecord) *DeliveryRecordModel {
	if d == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:               d.ID,
		UserID:           d.UserID,
		NotificationID:   d.NotificationID,
		Channel:          d.Channel,
		RecipientAddress: d.RecipientAddress,
		RenderedSubject:  d.RenderedSubject,
		RenderedBody:     d.RenderedBody,
		Status:           d.Status,
		SentAt:           d.SentAt,
		ErrorMessage:     d.ErrorMessage,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:               m.ID,
		UserID:           m.UserID,
		NotificationID:   m.NotificationID,
		Channel:          m.Channel,
		RecipientAddress: m.RecipientAddress,
		RenderedSubject:  m.RenderedSubject,
		RenderedBody:     m.RenderedBody,
		Status:           m.Status,
		SentAt:           m.SentAt,
		ErrorMessage:     m.ErrorMessage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func preferenceModelToDomain(m *NotificationPreferenceModel) *domain.NotificationPreferences {
	if m == nil {
		return nil
	}

	// Keys written by the settings flow are normalised; unknown ones are dropped.
	var leads []string
	for _, key := range strings.Split(m.LeadTimes, ",") {
		if lead, err := domain.ParseLeadTime(key); err == nil {
			leads = append(leads, lead.Key)
		}
	}

	language := strings.TrimSpace(m.Language)
	if language == "" {
		language = domain.DefaultLanguage
	}

	return &domain.NotificationPreferences{
		UserID: m.UserID,
		Channels: map[domain.Channel]bool{
			domain.ChannelInApp:    m.InAppEnabled,
			domain.ChannelEmail:    m.EmailEnabled,
			domain.ChannelSMS:      m.SMSEnabled,
			domain.ChannelWhatsApp: m.WhatsAppEnabled,
		},
		Categories: map[domain.Category]bool{
			domain.CategoryClassReminders: m.ClassRemindersEnabled,
			domain.CategoryMessages:       m.MessagesEnabled,
			domain.CategorySystemUpdates:  m.SystemUpdatesEnabled,
		},
		LeadTimes: leads,
		Language:  language,
		UpdatedAt: m.UpdatedAt,
	}
}

func preferenceModelFromDomain(p *domain.NotificationPreferences) *NotificationPreferenceModel {
	if p == nil {
		return nil
	}

	return &NotificationPreferenceModel{
		UserID:                p.UserID,
		InAppEnabled:          p.ChannelEnabled(domain.ChannelInApp),
		EmailEnabled:          p.ChannelEnabled(domain.ChannelEmail),
		SMSEnabled:            p.ChannelEnabled(domain.ChannelSMS),
		WhatsAppEnabled:       p.ChannelEnabled(domain.ChannelWhatsApp),
		ClassRemindersEnabled: p.CategoryEnabled(domain.CategoryClassReminders),
		MessagesEnabled:       p.CategoryEnabled(domain.CategoryMessages),
		SystemUpdatesEnabled:  p.CategoryEnabled(domain.CategorySystemUpdates),
		LeadTimes:             strings.Join(p.LeadTimes, ","),
		Language:              p.Language,
		UpdatedAt:             p.UpdatedAt,
	}
}

func markerModelFromDomain(m *domain.DispatchMarker) *DispatchMarkerModel {
	if m == nil {
		return nil
	}

	return &DispatchMarkerModel{
		ID:        m.ID,
		SubjectID: m.SubjectID,
		UserID:    m.UserID,
		Key:       m.Key,
		CreatedAt: m.CreatedAt,
	}
}
