package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// User is the contact view of an account.
type User struct {
	ID       string
	FullName string
	Email    string
	Phone    string
	Language string
	Role     Role
}

// AddressFor returns the address used to reach u over ch, or "" if none.
func (u User) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return strings.TrimSpace(u.Email)
	case ChannelSMS, ChannelWhatsApp:
		return strings.TrimSpace(u.Phone)
	case ChannelInApp:
		return u.ID
	}
	return ""
}

// StudentProfile carries the billing view of a student.
type StudentProfile struct {
	UserID           string
	RemainingLessons int
	IsTrial          bool
	TrialEndsAt      *time.Time
}
