package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/emberforum/engagement/internal/services/notifications/domain"
	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

// LogPushSender writes push messages to the service log instead of a push
// provider. Used when no provider is configured.
type LogPushSender struct {
	Logf func(format string, args ...any)
}

// SendPush logs the push message.
func (s *LogPushSender) SendPush(_ context.Context, subscription storage.PushSubscriptionRecord, msg domain.PushMessage) error {
	logf := log.Printf
	if s != nil && s.Logf != nil {
		logf = s.Logf
	}
	logf("push to %s (%s): %s - %s (%s)", subscription.UserID, subscription.Endpoint, msg.Title, msg.Body, msg.ActionURL)
	return nil
}

// LogEmailSender writes emails to the service log instead of an SMTP relay.
// Used when no relay is configured.
type LogEmailSender struct {
	Logf func(format string, args ...any)
}

// SendEmail logs the email message.
func (s *LogEmailSender) SendEmail(_ context.Context, address string, subject string, body string) error {
	logf := log.Printf
	if s != nil && s.Logf != nil {
		logf = s.Logf
	}
	logf("email to %s: %s - %s", address, subject, body)
	return nil
}

// StaticAddressBook resolves recipient contact details from an in-memory map.
// The platform's user service owns contact data; this stands in until that
// integration lands.
type StaticAddressBook struct {
	mu         sync.RWMutex
	recipients map[string]domain.Recipient
}

// NewStaticAddressBook constructs an empty address book.
func NewStaticAddressBook() *StaticAddressBook {
	return &StaticAddressBook{recipients: make(map[string]domain.Recipient)}
}

// SetRecipient stores contact details for one user.
func (b *StaticAddressBook) SetRecipient(userID string, recipient domain.Recipient) error {
	if b == nil {
		return errors.New("address book is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recipients[userID] = recipient
	return nil
}

// Recipient resolves one user's contact details.
func (b *StaticAddressBook) Recipient(_ context.Context, userID string) (domain.Recipient, error) {
	if b == nil {
		return domain.Recipient{}, domain.ErrNoEmailAddress
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	recipient, ok := b.recipients[strings.TrimSpace(userID)]
	if !ok {
		return domain.Recipient{}, domain.ErrNoEmailAddress
	}
	return recipient, nil
}
