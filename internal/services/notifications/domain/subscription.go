package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

var (
	// ErrEndpointRequired indicates a real subscription needs an endpoint.
	ErrEndpointRequired = errors.New("push endpoint is required")
	// ErrUnknownSubscriptionKind indicates an unrecognized subscription kind.
	ErrUnknownSubscriptionKind = errors.New("unknown push subscription kind")
)

// RegisterPushInput describes one push registration request.
type RegisterPushInput struct {
	UserID   string
	Kind     storage.SubscriptionKind
	Endpoint string
}

// RegisterPushSubscription stores or replaces one user's push registration.
// Mock registrations carry no endpoint and always deliver successfully.
func (d *Dispatcher) RegisterPushSubscription(ctx context.Context, input RegisterPushInput) error {
	if d == nil || d.store == nil {
		return ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return ErrRecipientUserIDRequired
	}
	kind := storage.SubscriptionKind(strings.TrimSpace(string(input.Kind)))
	endpoint := strings.TrimSpace(input.Endpoint)
	switch kind {
	case storage.SubscriptionKindReal:
		if endpoint == "" {
			return ErrEndpointRequired
		}
	case storage.SubscriptionKindMock:
		endpoint = ""
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSubscriptionKind, kind)
	}

	now := d.nowUTC()
	if err := d.store.UpsertPushSubscription(ctx, storage.PushSubscriptionRecord{
		UserID:    userID,
		Kind:      kind,
		Endpoint:  endpoint,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("register push subscription: %w", err)
	}
	return nil
}

// UnregisterPushSubscription removes one user's push registration. Removing
// an absent registration is a no-op.
func (d *Dispatcher) UnregisterPushSubscription(ctx context.Context, userID string) error {
	if d == nil || d.store == nil {
		return ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrRecipientUserIDRequired
	}
	if err := d.store.DeletePushSubscription(ctx, userID); err != nil {
		return fmt.Errorf("unregister push subscription: %w", err)
	}
	return nil
}
