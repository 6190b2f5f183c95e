package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type gatewayRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// GatewayProvider posts push-like messages (SMS, WhatsApp) to an HTTP gateway.
// An empty endpoint yields an unconfigured adaptor.
type GatewayProvider struct {
	client     *resty.Client
	channel    domain.Channel
	endpoint   string
	maxContent int
}

func NewGatewayProvider(channel domain.Channel, endpoint string) (*GatewayProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)

	return NewGatewayProviderWithClient(channel, endpoint, client)
}

func NewGatewayProviderWithClient(channel domain.Channel, endpoint string, client *resty.Client) (*GatewayProvider, error) {
	var maxContent int
	switch channel {
	case domain.ChannelSMS:
		maxContent = domain.MaxSMSContent
	case domain.ChannelWhatsApp:
		maxContent = domain.MaxWhatsAppContent
	default:
		return nil, fmt.Errorf("gateway adaptor does not serve channel %q", channel)
	}

	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint != "" {
		if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
			return nil, fmt.Errorf("invalid %s gateway endpoint: %w", channel, err)
		}
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// Failed reminders are retried by the next sweep, not by the transport.
	client.SetRetryCount(0)

	return &GatewayProvider{
		client:     client,
		channel:    channel,
		endpoint:   trimmedEndpoint,
		maxContent: maxContent,
	}, nil
}

func (p *GatewayProvider) Configured() bool {
	return p != nil && p.endpoint != ""
}

func (p *GatewayProvider) Verify(ctx context.Context) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	response, err := p.client.R().SetContext(ctx).Head(p.endpoint)
	if err != nil {
		return fmt.Errorf("%s gateway unreachable: %w", p.channel, err)
	}
	if response.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%s gateway unhealthy: status %d", p.channel, response.StatusCode())
	}
	return nil
}

func (p *GatewayProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, &ProviderError{Message: "recipient is required"}
	}

	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return nil, &ProviderError{Message: "message content is required"}
	}
	content = truncateRunes(content, p.maxContent)

	reqBody := gatewayRequest{
		To:      msg.To,
		Channel: strings.ToLower(p.channel.String()),
		Subject: msg.Subject,
		Content: content,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  gatewayMessageID(response),
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func statusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func gatewayMessageID(response *resty.Response) string {
	for _, key := range []string{"X-Message-Id", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
