package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/kursadbilgin/lesson-engine/internal/provider"
	"github.com/kursadbilgin/lesson-engine/internal/ratelimit"
	"github.com/kursadbilgin/lesson-engine/internal/render"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"go.uber.org/zap"
)

const errNoRecipientAddress = "no recipient address"

// Renderer produces the localized content of a notification.
type Renderer interface {
	Render(kind domain.Kind, language string, params map[string]string) (render.Rendered, error)
}

// IntentDispatcher is what the sweeps hand their intents to.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, intent domain.NotificationIntent) (DispatchResult, error)
}

type ChannelResult struct {
	Channel    domain.Channel
	DeliveryID string
	Status     domain.DeliveryStatus
	Err        error
}

type DispatchResult struct {
	NotificationID string
	// OptedOut is set when the recipient disabled the intent's category.
	OptedOut bool
	// Duplicate is set when an in-app record with the intent's dedupe key
	// already existed; no channel was invoked.
	Duplicate bool
	// Delivered tells sweeps the intent is done and may be marked.
	Delivered bool
	Channels  []ChannelResult
}

type DispatcherDeps struct {
	Preferences   repository.PreferenceRepository
	Users         repository.UserRepository
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	Renderer      Renderer
	Providers     map[domain.Channel]provider.Provider
	Throttle      ratelimit.Throttle
}

type Dispatcher struct {
	preferences   repository.PreferenceRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	renderer      Renderer
	providers     map[domain.Channel]provider.Provider
	throttle      ratelimit.Throttle
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDispatcher(deps DispatcherDeps, logger *zap.Logger) (*Dispatcher, error) {
	switch {
	case deps.Preferences == nil:
		return nil, fmt.Errorf("preference repository is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification repository is required")
	case deps.Deliveries == nil:
		return nil, fmt.Errorf("delivery repository is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("renderer is required")
	}

	throttle := deps.Throttle
	if throttle == nil {
		throttle = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		preferences:   deps.Preferences,
		users:         deps.Users,
		notifications: deps.Notifications,
		deliveries:    deps.Deliveries,
		renderer:      deps.Renderer,
		providers:     deps.Providers,
		throttle:      throttle,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch delivers intent to its recipient. Channel failures are reported
// in the result, never as an error; an error means nothing durable was
// written for the intent and the caller should retry later.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.NotificationIntent) (DispatchResult, error) {
	if err := intent.Validate(); err != nil {
		return DispatchResult{}, err
	}

	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("userId", intent.UserID),
		zap.String("kind", intent.Kind.String()),
	)

	prefs, err := d.preferences.GetByUserID(ctx, intent.UserID)
	preferencesStored := err == nil
	switch {
	case errors.Is(err, domain.ErrNotFound):
		defaults := domain.DefaultPreferences(intent.UserID)
		prefs = &defaults
	case err != nil:
		return DispatchResult{}, fmt.Errorf("failed to load preferences: %w", err)
	}

	if !prefs.CategoryEnabled(intent.Category()) {
		logger.Debug("recipient opted out of category", zap.String("category", intent.Category().String()))
		return DispatchResult{OptedOut: true, Delivered: true}, nil
	}

	user, err := d.users.GetByID(ctx, intent.UserID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to load recipient: %w", err)
	}

	language := prefs.Language
	if !preferencesStored && user.Language != "" {
		language = user.Language
	}

	params := make(map[string]string, len(intent.TemplateParams)+1)
	for k, v := range intent.TemplateParams {
		params[k] = v
	}
	if _, ok := params["recipientName"]; !ok {
		params["recipientName"] = user.FullName
	}

	content, err := d.renderer.Render(intent.Kind, language, params)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to render %s: %w", intent.Kind, err)
	}

	result := DispatchResult{}
	var notificationID *string

	if prefs.ChannelEnabled(domain.ChannelInApp) {
		notification := d.buildNotification(intent, content)
		created, err := d.notifications.CreateIfAbsent(ctx, notification)
		if err != nil {
			return DispatchResult{}, fmt.Errorf("failed to create in-app notification: %w", err)
		}

		result.NotificationID = notification.ID
		if !created {
			logger.Info("in-app notification already exists, skipping channels",
				zap.String("notificationId", notification.ID),
			)
			result.Duplicate = true
			result.Delivered = true
			return result, nil
		}
		notificationID = &result.NotificationID
	}

	attempted := 0
	sent := 0
	for _, channel := range domain.ExternalChannels {
		if !prefs.ChannelEnabled(channel) {
			continue
		}

		attempted++
		channelResult := d.deliver(ctx, logger, *user, channel, notificationID, content)
		if channelResult.Status == domain.DeliverySent {
			sent++
		}
		result.Channels = append(result.Channels, channelResult)
	}

	result.Delivered = notificationID != nil || attempted == 0 || sent > 0
	return result, nil
}

func (d *Dispatcher) buildNotification(intent domain.NotificationIntent, content render.Rendered) *domain.Notification {
	metadata := map[string]any{"category": intent.Category().String()}
	if intent.LeadTime != "" {
		metadata["leadTime"] = intent.LeadTime
	}

	notification := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    intent.UserID,
		Type:      intent.Kind,
		Title:     content.Subject,
		Message:   content.Text,
		Metadata:  metadata,
		CreatedAt: d.now().UTC(),
	}
	if intent.SessionID != "" {
		sessionID := intent.SessionID
		notification.RelatedSessionID = &sessionID
	}
	if intent.DedupeKey != "" {
		dedupeKey := intent.DedupeKey
		notification.DedupeKey = &dedupeKey
	}
	return notification
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	logger *zap.Logger,
	user domain.User,
	channel domain.Channel,
	notificationID *string,
	content render.Rendered,
) ChannelResult {
	logger = logger.With(zap.String("channel", channel.String()))

	body := content.Text
	if channel == domain.ChannelEmail {
		body = content.HTML
	}

	record := &domain.DeliveryRecord{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		NotificationID:   notificationID,
		Channel:          channel,
		RecipientAddress: user.AddressFor(channel),
		RenderedSubject:  content.Subject,
		RenderedBody:     body,
		Status:           domain.DeliveryPending,
		CreatedAt:        d.now().UTC(),
	}

	if record.RecipientAddress == "" {
		message := errNoRecipientAddress
		record.Status = domain.DeliveryFailed
		record.ErrorMessage = &message
		if err := d.deliveries.Create(ctx, record); err != nil {
			logger.Error("failed to persist delivery record", zap.Error(err))
		}
		logger.Warn("recipient has no address for channel")
		d.metrics.IncDelivery(channel.String(), domain.DeliveryFailed.String())
		return ChannelResult{Channel: channel, DeliveryID: record.ID, Status: domain.DeliveryFailed, Err: errors.New(message)}
	}

	if err := d.deliveries.Create(ctx, record); err != nil {
		logger.Error("failed to persist pending delivery record", zap.Error(err))
		d.metrics.IncDelivery(channel.String(), domain.DeliveryFailed.String())
		return ChannelResult{Channel: channel, Status: domain.DeliveryFailed, Err: err}
	}

	sendErr := d.send(ctx, channel, provider.Message{
		Channel: channel,
		To:      record.RecipientAddress,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})

	status := domain.DeliverySent
	var sentAt *time.Time
	var errMessage *string
	if sendErr != nil {
		status = domain.DeliveryFailed
		message := sendErr.Error()
		errMessage = &message
		logger.Warn("channel delivery failed",
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
	} else {
		now := d.now().UTC()
		sentAt = &now
	}

	// The attempt already happened; the record update must not be cut short
	// by the run deadline.
	updateCtx := context.WithoutCancel(ctx)
	if err := d.deliveries.CompleteAttempt(updateCtx, record.ID, status, sentAt, errMessage); err != nil {
		logger.Error("failed to complete delivery record",
			zap.String("deliveryId", record.ID),
			zap.Error(err),
		)
	}

	d.metrics.IncDelivery(channel.String(), status.String())
	return ChannelResult{Channel: channel, DeliveryID: record.ID, Status: status, Err: sendErr}
}

func (d *Dispatcher) send(ctx context.Context, channel domain.Channel, msg provider.Message) error {
	adaptor, ok := d.providers[channel]
	if !ok || adaptor == nil || !adaptor.Configured() {
		return provider.ErrNotConfigured
	}

	if err := d.throttle.Wait(ctx, channel); err != nil {
		return fmt.Errorf("channel throttle: %w", err)
	}

	start := d.now()
	_, err := adaptor.Send(ctx, msg)
	d.metrics.ObserveSendDuration(channel.String(), d.now().Sub(start))
	return err
}
