package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gopkg.in/gomail.v2"
)

func TestSMTPProviderUnconfigured(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  SMTPConfig
	}{
		{name: "missing host", cfg: SMTPConfig{Port: 587, Username: "u", Password: "p"}},
		{name: "missing user", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, Password: "p"}},
		{name: "missing password", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := NewSMTPProvider(tc.cfg)
			if p.Configured() {
				t.Fatal("expected unconfigured adaptor")
			}

			// send and dial are nil here, so any transport attempt would panic.
			_, err := p.Send(context.Background(), Message{Channel: domain.ChannelEmail, To: "a@example.com", Text: "hi"})
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("Send() error = %v, want ErrNotConfigured", err)
			}
			if err := p.Verify(context.Background()); !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("Verify() error = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestSMTPProviderSendBuildsMultipartMessage(t *testing.T) {
	t.Parallel()

	p := NewSMTPProvider(SMTPConfig{
		Host:        "smtp.example.com",
		Port:        465,
		Secure:      true,
		Username:    "mailer",
		Password:    "secret",
		FromAddress: "no-reply@example.com",
		FromName:    "Lessons",
	})
	if !p.dialer.SSL {
		t.Fatal("secure flag should enable implicit TLS")
	}

	var raw bytes.Buffer
	p.send = func(m *gomail.Message) error {
		_, err := m.WriteTo(&raw)
		return err
	}

	resp, err := p.Send(context.Background(), Message{
		Channel: domain.ChannelEmail,
		To:      "student@example.com",
		Subject: "Reminder",
		HTML:    "<p>Class soon</p>",
		Text:    "Class soon",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != 250 {
		t.Fatalf("StatusCode = %d, want 250", resp.StatusCode)
	}

	out := raw.String()
	for _, want := range []string{"To: student@example.com", "Subject: Reminder", "text/plain", "text/html", "Lessons"} {
		if !strings.Contains(out, want) {
			t.Fatalf("message missing %q:\n%s", want, out)
		}
	}
}

func TestSMTPProviderSendFailureIsTransient(t *testing.T) {
	t.Parallel()

	p := NewSMTPProvider(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	p.send = func(*gomail.Message) error { return errors.New("421 service not available") }

	_, err := p.Send(context.Background(), Message{Channel: domain.ChannelEmail, To: "a@example.com", Text: "hi"})
	if !IsTransient(err) {
		t.Fatalf("IsTransient(%v) = false, want true", err)
	}
}

func TestSMTPProviderSendHonoursContext(t *testing.T) {
	t.Parallel()

	p := NewSMTPProvider(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	release := make(chan struct{})
	defer close(release)
	p.send = func(*gomail.Message) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, Message{Channel: domain.ChannelEmail, To: "a@example.com", Text: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
}

func TestSMTPProviderRejectsOtherChannels(t *testing.T) {
	t.Parallel()

	p := NewSMTPProvider(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	p.send = func(*gomail.Message) error {
		t.Error("send must not be called")
		return nil
	}

	if _, err := p.Send(context.Background(), Message{Channel: domain.ChannelSMS, To: "+1", Text: "hi"}); err == nil {
		t.Fatal("expected error for sms message")
	}
}

func TestSendgridProviderSend(t *testing.T) {
	t.Parallel()

	var (
		gotAuth string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendgridEndpoint {
			t.Errorf("path = %s, want %s", r.URL.Path, sendgridEndpoint)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := newSendgridProvider("SG.key", "no-reply@example.com", "Lessons", server.URL)

	resp, err := p.Send(context.Background(), Message{
		Channel: domain.ChannelEmail,
		To:      "student@example.com",
		Subject: "Reminder",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.MessageID != "sg-1" {
		t.Fatalf("MessageID = %q, want sg-1", resp.MessageID)
	}
	if gotAuth != "Bearer SG.key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	content, _ := gotBody["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2", len(content))
	}
	first, _ := content[0].(map[string]any)
	if first["type"] != "text/plain" {
		t.Fatalf("first content type = %v, want text/plain", first["type"])
	}
}

func TestSendgridProviderErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	p := newSendgridProvider("SG.bad", "no-reply@example.com", "Lessons", server.URL)

	_, err := p.Send(context.Background(), Message{Channel: domain.ChannelEmail, To: "a@example.com", Text: "hi"})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != http.StatusUnauthorized || providerErr.Transient {
		t.Fatalf("ProviderError = %+v, want permanent 401", providerErr)
	}
}

func TestSendgridProviderUnconfigured(t *testing.T) {
	t.Parallel()

	p := NewSendgridProvider("  ", "no-reply@example.com", "Lessons")
	if p.Configured() {
		t.Fatal("expected unconfigured adaptor")
	}
	if _, err := p.Send(context.Background(), Message{Channel: domain.ChannelEmail, To: "a@example.com", Text: "hi"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v, want ErrNotConfigured", err)
	}
}
