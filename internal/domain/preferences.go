package domain

import "time"

const DefaultLanguage = "en"

// NotificationPreferences holds a user's delivery settings. Owned by the
// settings flow; read-only to the engine.
type NotificationPreferences struct {
	UserID     string
	Channels   map[Channel]bool
	Categories map[Category]bool
	LeadTimes  []string
	Language   string
	UpdatedAt  time.Time
}

// DefaultPreferences is what a user without a stored row gets: in-app and
// email on, every category on, every lead time selected.
func DefaultPreferences(userID string) NotificationPreferences {
	leads := make([]string, 0, len(ReminderLeadTimes))
	for _, lead := range ReminderLeadTimes {
		leads = append(leads, lead.Key)
	}

	return NotificationPreferences{
		UserID: userID,
		Channels: map[Channel]bool{
			ChannelInApp:    true,
			ChannelEmail:    true,
			ChannelSMS:      false,
			ChannelWhatsApp: false,
		},
		Categories: map[Category]bool{
			CategoryClassReminders: true,
			CategoryMessages:       true,
			CategorySystemUpdates:  true,
		},
		LeadTimes: leads,
		Language:  DefaultLanguage,
	}
}

// ChannelEnabled reports whether ch is on. In-app defaults to on when unset.
func (p NotificationPreferences) ChannelEnabled(ch Channel) bool {
	enabled, ok := p.Channels[ch]
	if !ok {
		return ch == ChannelInApp
	}
	return enabled
}

// CategoryEnabled reports whether c is on. Unset categories are on.
func (p NotificationPreferences) CategoryEnabled(c Category) bool {
	enabled, ok := p.Categories[c]
	if !ok {
		return true
	}
	return enabled
}

// LeadTimeSelected reports whether the user wants reminders at key. An empty
// selection means all lead times.
func (p NotificationPreferences) LeadTimeSelected(key string) bool {
	if len(p.LeadTimes) == 0 {
		return true
	}
	for _, selected := range p.LeadTimes {
		if selected == key {
			return true
		}
	}
	return false
}
