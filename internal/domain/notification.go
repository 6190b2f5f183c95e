package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents a notification transport.
type Channel string

const (
	ChannelInApp    Channel = "IN_APP"
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// ExternalChannels are the channels delivered through a Channel Adaptor, in
// dispatch order.
var ExternalChannels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Category groups notification kinds for opt-out purposes.
type Category string

const (
	CategoryClassReminders Category = "class_reminders"
	CategoryMessages       Category = "messages"
	CategorySystemUpdates  Category = "system_updates"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryClassReminders, CategoryMessages, CategorySystemUpdates:
		return true
	}
	return false
}

// Kind identifies what a notification is about and selects its template.
type Kind string

const (
	KindClassReminder Kind = "class_reminder"
	KindLowBalance    Kind = "low_balance"
	KindTrialExpiring Kind = "trial_expiring"
	KindGeneric       Kind = "generic"
)

func (k Kind) String() string { return string(k) }

// Category returns the opt-out category of k. Unknown kinds are system updates.
func (k Kind) Category() Category {
	switch k {
	case KindClassReminder:
		return CategoryClassReminders
	default:
		return CategorySystemUpdates
	}
}

// Notification is the in-app record shown to a user.
type Notification struct {
	ID               string
	UserID           string
	Type             Kind
	Title            string
	Message          string
	RelatedSessionID *string
	DedupeKey        *string
	Metadata         map[string]any
	Read             bool
	CreatedAt        time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return nil
}
