package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Secure      bool
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SMTPProvider sends email through an SMTP relay. Missing host or
// credentials leave it unconfigured.
type SMTPProvider struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	// send and dial are replaced in tests.
	send func(m *gomail.Message) error
	dial func() (gomail.SendCloser, error)
}

func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	p := &SMTPProvider{cfg: cfg}
	if !p.Configured() {
		return p
	}

	dialer := gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.Secure

	p.dialer = dialer
	p.send = func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	p.dial = dialer.Dial
	return p
}

func (p *SMTPProvider) Configured() bool {
	return p != nil &&
		strings.TrimSpace(p.cfg.Host) != "" &&
		p.cfg.Username != "" &&
		p.cfg.Password != ""
}

func (p *SMTPProvider) Verify(ctx context.Context) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	return runWithContext(ctx, func() error {
		conn, err := p.dial()
		if err != nil {
			return fmt.Errorf("smtp dial %s:%d: %w", p.cfg.Host, p.cfg.Port, err)
		}
		return conn.Close()
	})
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	if msg.Channel != domain.ChannelEmail {
		return nil, &ProviderError{Message: fmt.Sprintf("smtp adaptor cannot send %s", msg.Channel)}
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, &ProviderError{Message: "recipient is required"}
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.cfg.FromAddress, p.cfg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	err := runWithContext(ctx, func() error { return p.send(m) })
	if err != nil {
		return nil, &ProviderError{
			Message:   "smtp send failed",
			Transient: true,
			Cause:     err,
		}
	}

	return &ProviderResponse{StatusCode: 250}, nil
}

// runWithContext returns when fn does or ctx ends. gomail has no context
// support, so an abandoned fn finishes in the background.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
