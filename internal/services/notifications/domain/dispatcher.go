// Package domain implements notification fan-out: durable inbox writes,
// channel delivery attempts, push subscriptions, and retry scheduling.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emberforum/engagement/internal/platform/id"
	"github.com/emberforum/engagement/internal/platform/timeouts"
	"github.com/emberforum/engagement/internal/services/notifications/render"
	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

var (
	// ErrStoreNotConfigured indicates the dispatcher is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("notification store is not configured")
	// ErrRecipientUserIDRequired indicates recipient identity is required.
	ErrRecipientUserIDRequired = errors.New("recipient user id is required")
	// ErrMessageTypeRequired indicates a message type is required.
	ErrMessageTypeRequired = errors.New("notification message type is required")
)

const (
	defaultRetryBaseDelay = 30 * time.Second
	defaultRetryMaxDelay  = 15 * time.Minute
	defaultMaxAttempts    = 6
	defaultLocale         = "en"
)

// Store is the dispatcher persistence boundary.
type Store interface {
	storage.NotificationStore
	storage.DeliveryStore
	storage.PushSubscriptionStore
	storage.NotificationBootstrapStore
}

// Config tunes delivery retry behavior.
type Config struct {
	// RetryBaseDelay is the first retry interval; each further attempt doubles it.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff interval.
	RetryMaxDelay time.Duration
	// MaxAttempts is the attempt count after which a delivery is skipped for good.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Deps wires the dispatcher's collaborators. Store is required; senders and
// the address book are optional, their channels skip when absent.
type Deps struct {
	Store     Store
	Push      PushSender
	Email     EmailSender
	Addresses AddressBook
	Clock     func() time.Time
	NewID     func() (string, error)
	Logf      func(format string, args ...any)
}

// Dispatcher fans one engagement event out to the inbox and side channels.
type Dispatcher struct {
	cfg       Config
	store     Store
	push      PushSender
	email     EmailSender
	addresses AddressBook
	clock     func() time.Time
	newID     func() (string, error)
	logf      func(format string, args ...any)
}

// NewDispatcher constructs the notification dispatcher.
func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, ErrStoreNotConfigured
	}
	dispatcher := &Dispatcher{
		cfg:       cfg.withDefaults(),
		store:     deps.Store,
		push:      deps.Push,
		email:     deps.Email,
		addresses: deps.Addresses,
		clock:     deps.Clock,
		newID:     deps.NewID,
		logf:      deps.Logf,
	}
	if dispatcher.clock == nil {
		dispatcher.clock = time.Now
	}
	if dispatcher.newID == nil {
		dispatcher.newID = id.NewID
	}
	if dispatcher.logf == nil {
		dispatcher.logf = log.Printf
	}
	return dispatcher, nil
}

// DispatchInput describes one notification to fan out.
type DispatchInput struct {
	RecipientUserID string
	MessageType     string
	DedupeKey       string
	Source          string
	Payload         map[string]string
}

// Receipt reports the dispatch outcome per channel.
type Receipt struct {
	NotificationID string
	// Duplicate is true when the dedupe key matched an existing notification
	// and nothing new was written.
	Duplicate bool
	Channels  map[storage.DeliveryChannel]storage.DeliveryStatus
}

// Dispatch writes the inbox row and channel delivery rows in one transaction,
// then attempts push and email delivery. Channel failures are isolated: they
// schedule retries and never fail the dispatch. Dispatch only errors when the
// durable inbox write itself fails.
func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) (Receipt, error) {
	if d == nil || d.store == nil {
		return Receipt{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Receipt{}, ErrRecipientUserIDRequired
	}
	messageType := strings.TrimSpace(input.MessageType)
	if messageType == "" {
		return Receipt{}, ErrMessageTypeRequired
	}

	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := d.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if err == nil {
			return Receipt{NotificationID: existing.ID, Duplicate: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return Receipt{}, fmt.Errorf("dedupe lookup: %w", err)
		}
	}

	payloadJSON := "{}"
	if len(input.Payload) > 0 {
		encoded, err := json.Marshal(input.Payload)
		if err != nil {
			return Receipt{}, fmt.Errorf("encode payload: %w", err)
		}
		payloadJSON = string(encoded)
	}

	notificationID, err := d.newID()
	if err != nil {
		return Receipt{}, fmt.Errorf("new notification id: %w", err)
	}
	now := d.nowUTC()
	notification := storage.NotificationRecord{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		MessageType:     messageType,
		PayloadJSON:     payloadJSON,
		DedupeKey:       dedupeKey,
		Source:          strings.TrimSpace(input.Source),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// The inbox row is delivered the moment it commits; the worker never
	// revisits in-app deliveries.
	inAppDeliveredAt := now
	deliveries := []storage.DeliveryRecord{
		{
			NotificationID: notificationID,
			Channel:        storage.DeliveryChannelInApp,
			Status:         storage.DeliveryStatusDelivered,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
			DeliveredAt:    &inAppDeliveredAt,
		},
		{
			NotificationID: notificationID,
			Channel:        storage.DeliveryChannelPush,
			Status:         storage.DeliveryStatusPending,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			NotificationID: notificationID,
			Channel:        storage.DeliveryChannelEmail,
			Status:         storage.DeliveryStatusPending,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if err := d.store.PutNotificationWithDeliveries(ctx, notification, deliveries); err != nil {
		if dedupeKey != "" && errors.Is(err, storage.ErrConflict) {
			existing, lookupErr := d.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
			if lookupErr == nil {
				return Receipt{NotificationID: existing.ID, Duplicate: true}, nil
			}
		}
		return Receipt{}, fmt.Errorf("write notification: %w", err)
	}

	receipt := Receipt{
		NotificationID: notificationID,
		Channels: map[storage.DeliveryChannel]storage.DeliveryStatus{
			storage.DeliveryChannelInApp: storage.DeliveryStatusDelivered,
		},
	}
	receipt.Channels[storage.DeliveryChannelPush] = d.attemptPush(ctx, notification, 0)
	receipt.Channels[storage.DeliveryChannelEmail] = d.attemptEmail(ctx, notification, 0)
	return receipt, nil
}

// ProcessDueDeliveries retries due push or email deliveries and reports how
// many were processed. Deliveries past the attempt cap are skipped for good.
func (d *Dispatcher) ProcessDueDeliveries(ctx context.Context, channel storage.DeliveryChannel, limit int) (int, error) {
	if d == nil || d.store == nil {
		return 0, ErrStoreNotConfigured
	}
	if channel != storage.DeliveryChannelPush && channel != storage.DeliveryChannelEmail {
		return 0, fmt.Errorf("channel %q is not retryable", channel)
	}
	if limit <= 0 {
		limit = 50
	}

	now := d.nowUTC()
	due, err := d.store.ListPendingDeliveries(ctx, channel, limit, now)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}

	processed := 0
	for _, delivery := range due {
		if delivery.AttemptCount >= d.cfg.MaxAttempts {
			if err := d.store.MarkDeliverySkipped(ctx, delivery.NotificationID, channel, "attempt limit reached", now); err != nil {
				d.logf("skip exhausted %s delivery %s: %v", channel, delivery.NotificationID, err)
			}
			processed++
			continue
		}
		notification, err := d.store.GetNotification(ctx, delivery.NotificationID)
		if err != nil {
			d.logf("load notification %s for %s retry: %v", delivery.NotificationID, channel, err)
			continue
		}
		switch channel {
		case storage.DeliveryChannelPush:
			d.attemptPush(ctx, notification, delivery.AttemptCount)
		case storage.DeliveryChannelEmail:
			d.attemptEmail(ctx, notification, delivery.AttemptCount)
		}
		processed++
	}
	return processed, nil
}

// attemptPush tries one push delivery and records the resulting state. Mock
// subscriptions succeed without touching the sender.
func (d *Dispatcher) attemptPush(ctx context.Context, notification storage.NotificationRecord, attemptCount int) storage.DeliveryStatus {
	now := d.nowUTC()

	subscription, err := d.store.GetPushSubscription(ctx, notification.RecipientUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelPush, "no push subscription", now)
		}
		return d.retryDelivery(ctx, notification.ID, storage.DeliveryChannelPush, attemptCount, err)
	}

	if subscription.Kind == storage.SubscriptionKindMock {
		return d.completeDelivery(ctx, notification.ID, storage.DeliveryChannelPush, now)
	}
	if d.push == nil {
		return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelPush, "push sender not configured", now)
	}

	out := render.Render(render.NewLocalizer(d.recipientLocale(ctx, notification.RecipientUserID)), render.Input{
		MessageType: notification.MessageType,
		PayloadJSON: notification.PayloadJSON,
		Channel:     render.ChannelPush,
	})
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.ChannelSend)
	err = d.push.SendPush(sendCtx, subscription, PushMessage{
		Title:     out.Title,
		Body:      out.BodyText,
		ActionURL: out.ActionURL,
	})
	cancel()
	if err != nil {
		if errors.Is(err, ErrSubscriptionGone) {
			if deleteErr := d.store.DeletePushSubscription(ctx, notification.RecipientUserID); deleteErr != nil {
				d.logf("clear gone subscription for %s: %v", notification.RecipientUserID, deleteErr)
			}
			return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelPush, "subscription gone", now)
		}
		return d.retryDelivery(ctx, notification.ID, storage.DeliveryChannelPush, attemptCount, err)
	}
	return d.completeDelivery(ctx, notification.ID, storage.DeliveryChannelPush, now)
}

// attemptEmail tries one email delivery and records the resulting state.
func (d *Dispatcher) attemptEmail(ctx context.Context, notification storage.NotificationRecord, attemptCount int) storage.DeliveryStatus {
	now := d.nowUTC()

	if d.addresses == nil || d.email == nil {
		return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, "email delivery not configured", now)
	}
	recipient, err := d.addresses.Recipient(ctx, notification.RecipientUserID)
	if err != nil {
		if errors.Is(err, ErrNoEmailAddress) {
			return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, "no email address", now)
		}
		return d.retryDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, attemptCount, err)
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return d.skipDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, "no email address", now)
	}

	locale := recipient.Locale
	if strings.TrimSpace(locale) == "" {
		locale = defaultLocale
	}
	out := render.Render(render.NewLocalizer(locale), render.Input{
		MessageType: notification.MessageType,
		PayloadJSON: notification.PayloadJSON,
		Channel:     render.ChannelEmail,
	})
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.ChannelSend)
	err = d.email.SendEmail(sendCtx, recipient.Email, out.EmailSubject, out.BodyText)
	cancel()
	if err != nil {
		return d.retryDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, attemptCount, err)
	}
	return d.completeDelivery(ctx, notification.ID, storage.DeliveryChannelEmail, now)
}

func (d *Dispatcher) completeDelivery(ctx context.Context, notificationID string, channel storage.DeliveryChannel, now time.Time) storage.DeliveryStatus {
	if err := d.store.MarkDeliverySucceeded(ctx, notificationID, channel, now); err != nil {
		d.logf("mark %s delivery succeeded for %s: %v", channel, notificationID, err)
		return storage.DeliveryStatusPending
	}
	return storage.DeliveryStatusDelivered
}

func (d *Dispatcher) skipDelivery(ctx context.Context, notificationID string, channel storage.DeliveryChannel, reason string, now time.Time) storage.DeliveryStatus {
	if err := d.store.MarkDeliverySkipped(ctx, notificationID, channel, reason, now); err != nil {
		d.logf("mark %s delivery skipped for %s: %v", channel, notificationID, err)
		return storage.DeliveryStatusPending
	}
	return storage.DeliveryStatusSkipped
}

func (d *Dispatcher) retryDelivery(ctx context.Context, notificationID string, channel storage.DeliveryChannel, attemptCount int, cause error) storage.DeliveryStatus {
	nextAttempt := attemptCount + 1
	nextAttemptAt := d.nowUTC().Add(d.backoff(nextAttempt))
	d.logf("%s delivery for %s failed (attempt %d): %v", channel, notificationID, nextAttempt, cause)
	if err := d.store.MarkDeliveryRetry(ctx, notificationID, channel, nextAttempt, nextAttemptAt, cause.Error()); err != nil {
		d.logf("mark %s delivery retry for %s: %v", channel, notificationID, err)
	}
	return storage.DeliveryStatusFailed
}

// backoff doubles the base delay per attempt, capped at RetryMaxDelay.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.RetryMaxDelay {
			return d.cfg.RetryMaxDelay
		}
	}
	if delay > d.cfg.RetryMaxDelay {
		return d.cfg.RetryMaxDelay
	}
	return delay
}

func (d *Dispatcher) recipientLocale(ctx context.Context, userID string) string {
	if d.addresses == nil {
		return defaultLocale
	}
	recipient, err := d.addresses.Recipient(ctx, userID)
	if err != nil || strings.TrimSpace(recipient.Locale) == "" {
		return defaultLocale
	}
	return recipient.Locale
}

func (d *Dispatcher) nowUTC() time.Time {
	return d.clock().UTC()
}
