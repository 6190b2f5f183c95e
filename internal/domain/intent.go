package domain

import (
	"fmt"
	"strings"
	"time"
)

// LeadTime is how long before a session start a reminder fires.
type LeadTime struct {
	Key           string
	Duration      time.Duration
	NotifyTeacher bool
}

var (
	Lead24Hours   = LeadTime{Key: "24h", Duration: 24 * time.Hour}
	Lead1Hour     = LeadTime{Key: "1h", Duration: time.Hour, NotifyTeacher: true}
	Lead15Minutes = LeadTime{Key: "15m", Duration: 15 * time.Minute, NotifyTeacher: true}
)

var ReminderLeadTimes = []LeadTime{Lead24Hours, Lead1Hour, Lead15Minutes}

func ParseLeadTime(s string) (LeadTime, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, lead := range ReminderLeadTimes {
		if lead.Key == key {
			return lead, nil
		}
	}
	return LeadTime{}, fmt.Errorf("%w: invalid lead time %q", ErrValidation, s)
}

// MarkerKey is the dispatch marker key for reminders at this lead time.
func (l LeadTime) MarkerKey() string { return "reminder:" + l.Key }

// NotificationIntent is a request to notify one user. It is never stored;
// the dispatcher consumes it immediately.
type NotificationIntent struct {
	SessionID      string
	UserID         string
	Kind           Kind
	LeadTime       string
	DedupeKey      string
	TemplateParams map[string]string
}

func (i NotificationIntent) Category() Category { return i.Kind.Category() }

func (i NotificationIntent) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("%w: intent user id is required", ErrValidation)
	}
	if strings.TrimSpace(string(i.Kind)) == "" {
		return fmt.Errorf("%w: intent kind is required", ErrValidation)
	}
	return nil
}
