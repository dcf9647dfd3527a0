package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	engagement "github.com/emberforum/engagement/internal/services/engagement/domain"
	notifications "github.com/emberforum/engagement/internal/services/notifications/domain"
)

const notificationSourceEngagement = "engagement"

// Notifier bridges terminal engagement events into the notification
// dispatcher. It satisfies the engagement engine's notifier contract.
type Notifier struct {
	dispatcher *notifications.Dispatcher
	logf       func(format string, args ...any)
}

// NewNotifier constructs the engagement-to-dispatcher bridge.
func NewNotifier(dispatcher *notifications.Dispatcher, logf func(format string, args ...any)) (*Notifier, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Notifier{dispatcher: dispatcher, logf: logf}, nil
}

// Notify fans one engagement event out through the dispatcher. The durable
// inbox write must succeed; channel outcomes are logged and never propagated.
func (n *Notifier) Notify(ctx context.Context, event engagement.Event) error {
	if n == nil || n.dispatcher == nil {
		return errors.New("notifier is not configured")
	}
	receipt, err := n.dispatcher.Dispatch(ctx, notifications.DispatchInput{
		RecipientUserID: event.RecipientUserID,
		MessageType:     string(event.Type),
		DedupeKey:       event.DedupeKey,
		Source:          notificationSourceEngagement,
		Payload:         event.Payload,
	})
	if err != nil {
		return fmt.Errorf("dispatch %s event: %w", event.Type, err)
	}
	if receipt.Duplicate {
		n.logf("suppressed duplicate %s notification for %s", event.Type, event.RecipientUserID)
	}
	return nil
}
