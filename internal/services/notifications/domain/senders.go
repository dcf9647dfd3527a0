package domain

import (
	"context"
	"errors"

	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

var (
	// ErrSubscriptionGone indicates the push endpoint permanently rejected the
	// subscription. The dispatcher clears the stored registration in response.
	ErrSubscriptionGone = errors.New("push subscription gone")
	// ErrNoEmailAddress indicates the recipient has no deliverable address.
	ErrNoEmailAddress = errors.New("no email address on file")
)

// PushMessage is localized copy handed to a push sender.
type PushMessage struct {
	Title     string
	Body      string
	ActionURL string
}

// PushSender delivers one push message to a registered subscription.
type PushSender interface {
	SendPush(ctx context.Context, subscription storage.PushSubscriptionRecord, msg PushMessage) error
}

// EmailSender delivers one email message.
type EmailSender interface {
	SendEmail(ctx context.Context, address string, subject string, body string) error
}

// Recipient is contact and locale information for one user.
type Recipient struct {
	Email  string
	Locale string
}

// AddressBook resolves recipient contact details. Lookups failing with
// ErrNoEmailAddress skip email delivery without scheduling retries.
type AddressBook interface {
	Recipient(ctx context.Context, userID string) (Recipient, error)
}
