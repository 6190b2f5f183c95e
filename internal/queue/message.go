package queue

import (
	"fmt"
	"strings"
	"time"
)

// ConversionMessage asks the subscription service to convert the student of
// a completed trial session if they are eligible.
type ConversionMessage struct {
	SessionID   string    `json:"sessionId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (m ConversionMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if m.RequestedAt.IsZero() {
		return fmt.Errorf("requestedAt is required")
	}
	return nil
}
