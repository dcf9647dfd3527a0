package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

var (
	// ErrNotificationIDRequired indicates notification ID is required.
	ErrNotificationIDRequired = errors.New("notification id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// ListInbox lists recipient inbox notifications newest first.
func (d *Dispatcher) ListInbox(ctx context.Context, input ListInboxInput) (storage.NotificationPage, error) {
	if d == nil || d.store == nil {
		return storage.NotificationPage{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return storage.NotificationPage{}, ErrRecipientUserIDRequired
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return d.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
}

// CountUnread returns the recipient's unread inbox count.
func (d *Dispatcher) CountUnread(ctx context.Context, recipientUserID string) (int, error) {
	if d == nil || d.store == nil {
		return 0, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, ErrRecipientUserIDRequired
	}
	return d.store.CountUnreadNotificationsByRecipient(ctx, recipientUserID)
}

// MarkRead marks one recipient notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, recipientUserID string, notificationID string) (storage.NotificationRecord, error) {
	if d == nil || d.store == nil {
		return storage.NotificationRecord{}, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, ErrRecipientUserIDRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return storage.NotificationRecord{}, ErrNotificationIDRequired
	}
	return d.store.MarkNotificationRead(ctx, recipientUserID, notificationID, d.nowUTC())
}
