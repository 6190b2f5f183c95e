package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
	sendgridScopes   = "/v3/scopes"
)

// SendgridProvider sends email through the SendGrid v3 API. A missing API
// key leaves it unconfigured.
type SendgridProvider struct {
	key  string
	host string
	from *sgmail.Email
}

func NewSendgridProvider(apiKey, fromAddress, fromName string) *SendgridProvider {
	return newSendgridProvider(apiKey, fromAddress, fromName, sendgridHost)
}

func newSendgridProvider(apiKey, fromAddress, fromName, host string) *SendgridProvider {
	return &SendgridProvider{
		key:  strings.TrimSpace(apiKey),
		host: host,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

func (p *SendgridProvider) Configured() bool {
	return p != nil && p.key != ""
}

func (p *SendgridProvider) Verify(ctx context.Context) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	req := sendgrid.GetRequest(p.key, sendgridScopes, p.host)
	req.Method = http.MethodGet

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid unreachable: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected credentials: status %d", res.StatusCode)
	}
	return nil
}

func (p *SendgridProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	if msg.Channel != domain.ChannelEmail {
		return nil, &ProviderError{Message: fmt.Sprintf("sendgrid adaptor cannot send %s", msg.Channel)}
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, &ProviderError{Message: "recipient is required"}
	}

	req := sendgrid.GetRequest(p.key, sendgridEndpoint, p.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(p.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return nil, &ProviderError{
			Message:   "sendgrid request failed",
			Transient: true,
			Cause:     err,
		}
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, &ProviderError{
			StatusCode: res.StatusCode,
			Message:    statusErrorMessage(res.StatusCode, strings.TrimSpace(res.Body)),
			Transient:  isTransientHTTPStatus(res.StatusCode),
		}
	}

	var messageID string
	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &ProviderResponse{
		StatusCode: res.StatusCode,
		Body:       res.Body,
		MessageID:  messageID,
	}, nil
}

func (p *SendgridProvider) prepare(msg Message) *sgmail.SGMailV3 {
	personalization := sgmail.NewPersonalization()
	personalization.Subject = msg.Subject
	personalization.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(p.from)
	m.AddPersonalizations(personalization)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}
