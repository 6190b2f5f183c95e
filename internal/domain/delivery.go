package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus is the outcome of one channel attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryFailed:
		return true
	}
	return false
}

// Content limits per channel (in characters).
const (
	MaxSMSContent      = 480
	MaxWhatsAppContent = 4096
	MaxEmailContent    = 100000
)

// DeliveryRecord records a single channel attempt for a dispatched intent.
type DeliveryRecord struct {
	ID               string
	UserID           string
	NotificationID   *string
	Channel          Channel
	RecipientAddress string
	RenderedSubject  string
	RenderedBody     string
	Status           DeliveryStatus
	SentAt           *time.Time
	ErrorMessage     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks that the record can be handed to a transport.
func (d *DeliveryRecord) Validate() error {
	if strings.TrimSpace(d.RecipientAddress) == "" {
		return fmt.Errorf("%w: recipient address is required", ErrValidation)
	}
	if strings.TrimSpace(d.RenderedBody) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if !d.Channel.IsValid() || d.Channel == ChannelInApp {
		return fmt.Errorf("%w: invalid delivery channel %q", ErrValidation, d.Channel)
	}

	contentLen := len([]rune(d.RenderedBody))
	switch d.Channel {
	case ChannelSMS:
		if contentLen > MaxSMSContent {
			return fmt.Errorf("%w: SMS content exceeds %d characters (got %d)", ErrValidation, MaxSMSContent, contentLen)
		}
	case ChannelWhatsApp:
		if contentLen > MaxWhatsAppContent {
			return fmt.Errorf("%w: WhatsApp content exceeds %d characters (got %d)", ErrValidation, MaxWhatsAppContent, contentLen)
		}
	case ChannelEmail:
		if contentLen > MaxEmailContent {
			return fmt.Errorf("%w: email content exceeds %d characters (got %d)", ErrValidation, MaxEmailContent, contentLen)
		}
	}

	return nil
}
