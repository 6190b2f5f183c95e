package domain

import "time"

// DispatchMarker records that a notification keyed by (SubjectID, UserID, Key)
// was delivered. For reminders SubjectID is the session id and Key is
// LeadTime.MarkerKey().
type DispatchMarker struct {
	ID        string
	SubjectID string
	UserID    string
	Key       string
	CreatedAt time.Time
}

// DedupeKey is the in-app dedupe key derived from the marker identity.
func (m DispatchMarker) DedupeKey() string {
	return m.Key + ":" + m.SubjectID + ":" + m.UserID
}

func ReminderMarker(sessionID, userID string, lead LeadTime) DispatchMarker {
	return DispatchMarker{SubjectID: sessionID, UserID: userID, Key: lead.MarkerKey()}
}
