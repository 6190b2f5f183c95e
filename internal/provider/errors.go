package provider

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
)

// ErrNotConfigured is returned by adaptors built without transport credentials.
var ErrNotConfigured = errors.New("channel adaptor is not configured")

// ProviderError is a failed send as seen by a channel adaptor. Transient marks
// failures that a later sweep may succeed on (timeouts, 429, 5xx).
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("channel send failed")
	if e.StatusCode > 0 {
		b.WriteString(": status=")
		b.WriteString(strconv.Itoa(e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether err is worth logging as a temporary outage.
// Nothing retries inline; the next sweep is the retry.
func IsTransient(err error) bool {
	var (
		providerErr *ProviderError
		netErr      net.Error
	)

	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotConfigured), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &providerErr):
		return providerErr.Transient
	case errors.As(err, &netErr):
		return netErr.Timeout()
	default:
		return false
	}
}
