package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

type deliveryKey struct {
	notificationID string
	channel        storage.DeliveryChannel
}

// fakeStore keeps dispatcher state in maps with the same conflict and
// not-found semantics as the sqlite store.
type fakeStore struct {
	mu            sync.Mutex
	notifications map[string]storage.NotificationRecord
	deliveries    map[deliveryKey]storage.DeliveryRecord
	subscriptions map[string]storage.PushSubscriptionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: make(map[string]storage.NotificationRecord),
		deliveries:    make(map[deliveryKey]storage.DeliveryRecord),
		subscriptions: make(map[string]storage.PushSubscriptionRecord),
	}
}

func (s *fakeStore) PutNotification(_ context.Context, record storage.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[record.ID] = record
	return nil
}

func (s *fakeStore) GetNotification(_ context.Context, notificationID string) (storage.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.notifications[notificationID]
	if !ok {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) GetNotificationByRecipientAndDedupeKey(_ context.Context, recipientUserID string, dedupeKey string) (storage.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.notifications {
		if record.RecipientUserID == recipientUserID && record.DedupeKey != "" && record.DedupeKey == dedupeKey {
			return record, nil
		}
	}
	return storage.NotificationRecord{}, storage.ErrNotFound
}

func (s *fakeStore) ListNotificationsByRecipient(_ context.Context, recipientUserID string, pageSize int, _ string) (storage.NotificationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []storage.NotificationRecord
	for _, record := range s.notifications {
		if record.RecipientUserID == recipientUserID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > pageSize {
		records = records[:pageSize]
	}
	return storage.NotificationPage{Notifications: records}, nil
}

func (s *fakeStore) CountUnreadNotificationsByRecipient(_ context.Context, recipientUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.notifications {
		if record.RecipientUserID == recipientUserID && record.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) MarkNotificationRead(_ context.Context, recipientUserID string, notificationID string, readAt time.Time) (storage.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.notifications[notificationID]
	if !ok || record.RecipientUserID != recipientUserID {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	record.ReadAt = &readAt
	record.UpdatedAt = readAt
	s.notifications[notificationID] = record
	return record, nil
}

func (s *fakeStore) PutDelivery(_ context.Context, record storage.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[deliveryKey{record.NotificationID, record.Channel}] = record
	return nil
}

func (s *fakeStore) ListPendingDeliveries(_ context.Context, channel storage.DeliveryChannel, limit int, now time.Time) ([]storage.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []storage.DeliveryRecord
	for _, record := range s.deliveries {
		if record.Channel != channel {
			continue
		}
		if record.Status != storage.DeliveryStatusPending && record.Status != storage.DeliveryStatusFailed {
			continue
		}
		if record.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, record)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeStore) MarkDeliveryRetry(_ context.Context, notificationID string, channel storage.DeliveryChannel, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deliveryKey{notificationID, channel}
	record, ok := s.deliveries[key]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = storage.DeliveryStatusFailed
	record.AttemptCount = attemptCount
	record.NextAttemptAt = nextAttemptAt
	record.LastError = lastError
	record.DeliveredAt = nil
	s.deliveries[key] = record
	return nil
}

func (s *fakeStore) MarkDeliverySucceeded(_ context.Context, notificationID string, channel storage.DeliveryChannel, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deliveryKey{notificationID, channel}
	record, ok := s.deliveries[key]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = storage.DeliveryStatusDelivered
	record.LastError = ""
	record.DeliveredAt = &deliveredAt
	s.deliveries[key] = record
	return nil
}

func (s *fakeStore) MarkDeliverySkipped(_ context.Context, notificationID string, channel storage.DeliveryChannel, reason string, skippedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deliveryKey{notificationID, channel}
	record, ok := s.deliveries[key]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = storage.DeliveryStatusSkipped
	record.LastError = reason
	record.UpdatedAt = skippedAt
	s.deliveries[key] = record
	return nil
}

func (s *fakeStore) UpsertPushSubscription(_ context.Context, record storage.PushSubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[record.UserID] = record
	return nil
}

func (s *fakeStore) GetPushSubscription(_ context.Context, userID string) (storage.PushSubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.subscriptions[userID]
	if !ok {
		return storage.PushSubscriptionRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) DeletePushSubscription(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, userID)
	return nil
}

func (s *fakeStore) PutNotificationWithDeliveries(ctx context.Context, notification storage.NotificationRecord, deliveries []storage.DeliveryRecord) error {
	s.mu.Lock()
	if notification.DedupeKey != "" {
		for _, existing := range s.notifications {
			if existing.RecipientUserID == notification.RecipientUserID && existing.DedupeKey == notification.DedupeKey {
				s.mu.Unlock()
				return storage.ErrConflict
			}
		}
	}
	s.notifications[notification.ID] = notification
	s.mu.Unlock()
	for _, delivery := range deliveries {
		if err := s.PutDelivery(ctx, delivery); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) delivery(t *testing.T, notificationID string, channel storage.DeliveryChannel) storage.DeliveryRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.deliveries[deliveryKey{notificationID, channel}]
	if !ok {
		t.Fatalf("missing %s delivery for %s", channel, notificationID)
	}
	return record
}

type sentPush struct {
	subscription storage.PushSubscriptionRecord
	msg          PushMessage
}

type fakePushSender struct {
	mu   sync.Mutex
	err  error
	sent []sentPush
}

func (f *fakePushSender) SendPush(_ context.Context, subscription storage.PushSubscriptionRecord, msg PushMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentPush{subscription: subscription, msg: msg})
	return nil
}

type sentEmail struct {
	address string
	subject string
	body    string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	err  error
	sent []sentEmail
}

func (f *fakeEmailSender) SendEmail(_ context.Context, address string, subject string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{address: address, subject: subject, body: body})
	return nil
}

type fakeAddressBook struct {
	recipients map[string]Recipient
	err        error
}

func (f *fakeAddressBook) Recipient(_ context.Context, userID string) (Recipient, error) {
	if f.err != nil {
		return Recipient{}, f.err
	}
	recipient, ok := f.recipients[userID]
	if !ok {
		return Recipient{}, ErrNoEmailAddress
	}
	return recipient, nil
}

type testDispatcher struct {
	dispatcher *Dispatcher
	store      *fakeStore
	push       *fakePushSender
	email      *fakeEmailSender
	addresses  *fakeAddressBook
	now        time.Time
}

func newTestDispatcher(t *testing.T, cfg Config) *testDispatcher {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	td := &testDispatcher{
		store: newFakeStore(),
		push:  &fakePushSender{},
		email: &fakeEmailSender{},
		addresses: &fakeAddressBook{recipients: map[string]Recipient{
			"user-1": {Email: "user-1@example.com", Locale: "en"},
		}},
		now: now,
	}
	ids := 0
	dispatcher, err := NewDispatcher(cfg, Deps{
		Store:     td.store,
		Push:      td.push,
		Email:     td.email,
		Addresses: td.addresses,
		Clock:     func() time.Time { return td.now },
		NewID: func() (string, error) {
			ids++
			return fmt.Sprintf("notif-%03d", ids), nil
		},
		Logf: t.Logf,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	td.dispatcher = dispatcher
	return td
}

func TestNewDispatcherRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(Config{}, Deps{}); !errors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("expected ErrStoreNotConfigured, got %v", err)
	}
}

func TestDispatchValidation(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	if _, err := td.dispatcher.Dispatch(ctx, DispatchInput{MessageType: "xp.level_up"}); !errors.Is(err, ErrRecipientUserIDRequired) {
		t.Fatalf("expected ErrRecipientUserIDRequired, got %v", err)
	}
	if _, err := td.dispatcher.Dispatch(ctx, DispatchInput{RecipientUserID: "user-1"}); !errors.Is(err, ErrMessageTypeRequired) {
		t.Fatalf("expected ErrMessageTypeRequired, got %v", err)
	}
}

func TestDispatchWritesInboxAndDeliveries(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.level_up",
		Source:          "engagement",
		Payload:         map[string]string{"level": "3"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Duplicate {
		t.Fatal("first dispatch must not be a duplicate")
	}

	notification, err := td.store.GetNotification(ctx, receipt.NotificationID)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if notification.MessageType != "xp.level_up" {
		t.Fatalf("unexpected message type %q", notification.MessageType)
	}
	if !strings.Contains(notification.PayloadJSON, `"level":"3"`) {
		t.Fatalf("payload not encoded: %q", notification.PayloadJSON)
	}

	inApp := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelInApp)
	if inApp.Status != storage.DeliveryStatusDelivered || inApp.DeliveredAt == nil {
		t.Fatalf("in-app delivery not completed: %+v", inApp)
	}
	if receipt.Channels[storage.DeliveryChannelInApp] != storage.DeliveryStatusDelivered {
		t.Fatalf("unexpected in-app receipt status %q", receipt.Channels[storage.DeliveryChannelInApp])
	}

	// No push subscription registered: the push channel is skipped, email sends.
	push := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelPush)
	if push.Status != storage.DeliveryStatusSkipped || push.LastError != "no push subscription" {
		t.Fatalf("unexpected push delivery state: %+v", push)
	}
	email := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelEmail)
	if email.Status != storage.DeliveryStatusDelivered {
		t.Fatalf("unexpected email delivery state: %+v", email)
	}
	if len(td.email.sent) != 1 || td.email.sent[0].address != "user-1@example.com" {
		t.Fatalf("unexpected sent emails: %+v", td.email.sent)
	}
}

func TestDispatchDedupeKeyReturnsDuplicate(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()
	input := DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "badge.granted",
		DedupeKey:       "badge:user-1:first-post",
	}

	first, err := td.dispatcher.Dispatch(ctx, input)
	if err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	second, err := td.dispatcher.Dispatch(ctx, input)
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("second dispatch must be reported as a duplicate")
	}
	if second.NotificationID != first.NotificationID {
		t.Fatalf("duplicate receipt id %q != original %q", second.NotificationID, first.NotificationID)
	}
	if count, _ := td.store.CountUnreadNotificationsByRecipient(ctx, "user-1"); count != 1 {
		t.Fatalf("expected a single stored notification, got %d", count)
	}
}

func TestDispatchRealSubscriptionSendsPush(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{
		UserID:   "user-1",
		Kind:     storage.SubscriptionKindReal,
		Endpoint: "https://push.example.com/sub/abc",
	}); err != nil {
		t.Fatalf("RegisterPushSubscription: %v", err)
	}

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.level_up",
		Payload:         map[string]string{"level": "2"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Channels[storage.DeliveryChannelPush] != storage.DeliveryStatusDelivered {
		t.Fatalf("unexpected push status %q", receipt.Channels[storage.DeliveryChannelPush])
	}
	if len(td.push.sent) != 1 {
		t.Fatalf("expected one push send, got %d", len(td.push.sent))
	}
	if td.push.sent[0].subscription.Endpoint != "https://push.example.com/sub/abc" {
		t.Fatalf("unexpected endpoint %q", td.push.sent[0].subscription.Endpoint)
	}
	if td.push.sent[0].msg.Title == "" || td.push.sent[0].msg.ActionURL != "/profile" {
		t.Fatalf("unexpected push message: %+v", td.push.sent[0].msg)
	}
}

func TestDispatchMockSubscriptionDeliversWithoutSender(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{
		UserID: "user-1",
		Kind:   storage.SubscriptionKindMock,
	}); err != nil {
		t.Fatalf("RegisterPushSubscription: %v", err)
	}
	// A mock subscription must deliver even when the sender would fail.
	td.push.err = errors.New("push provider down")

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.rank_up",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Channels[storage.DeliveryChannelPush] != storage.DeliveryStatusDelivered {
		t.Fatalf("unexpected push status %q", receipt.Channels[storage.DeliveryChannelPush])
	}
	if len(td.push.sent) != 0 {
		t.Fatalf("mock subscription must not touch the sender, sent %d", len(td.push.sent))
	}
}

func TestDispatchSubscriptionGoneClearsRegistration(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{
		UserID:   "user-1",
		Kind:     storage.SubscriptionKindReal,
		Endpoint: "https://push.example.com/sub/stale",
	}); err != nil {
		t.Fatalf("RegisterPushSubscription: %v", err)
	}
	td.push.err = ErrSubscriptionGone

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.level_up",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Channels[storage.DeliveryChannelPush] != storage.DeliveryStatusSkipped {
		t.Fatalf("unexpected push status %q", receipt.Channels[storage.DeliveryChannelPush])
	}
	if _, err := td.store.GetPushSubscription(ctx, "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected cleared subscription, got %v", err)
	}
	push := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelPush)
	if push.LastError != "subscription gone" {
		t.Fatalf("unexpected skip reason %q", push.LastError)
	}
}

func TestDispatchEmailFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{RetryBaseDelay: time.Minute, RetryMaxDelay: 10 * time.Minute})
	ctx := context.Background()
	td.email.err = errors.New("smtp timeout")

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "mission.completed",
		Payload:         map[string]string{"mission_id": "first-week", "mission_title": "First Week", "xp": "150"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Channels[storage.DeliveryChannelEmail] != storage.DeliveryStatusFailed {
		t.Fatalf("unexpected email status %q", receipt.Channels[storage.DeliveryChannelEmail])
	}

	email := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelEmail)
	if email.Status != storage.DeliveryStatusFailed || email.AttemptCount != 1 {
		t.Fatalf("unexpected email delivery state: %+v", email)
	}
	if email.LastError != "smtp timeout" {
		t.Fatalf("unexpected last error %q", email.LastError)
	}
	if got, want := email.NextAttemptAt, td.now.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("unexpected next attempt %v, want %v", got, want)
	}
}

func TestDispatchMissingEmailAddressSkips(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-2",
		MessageType:     "xp.level_up",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if receipt.Channels[storage.DeliveryChannelEmail] != storage.DeliveryStatusSkipped {
		t.Fatalf("unexpected email status %q", receipt.Channels[storage.DeliveryChannelEmail])
	}
	email := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelEmail)
	if email.LastError != "no email address" {
		t.Fatalf("unexpected skip reason %q", email.LastError)
	}
}

func TestProcessDueDeliveriesRetriesAndRecovers(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{RetryBaseDelay: time.Minute, RetryMaxDelay: 10 * time.Minute})
	ctx := context.Background()
	td.email.err = errors.New("smtp timeout")

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.level_up",
		Payload:         map[string]string{"level": "4"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// Not due yet: the worker must leave the delivery alone.
	processed, err := td.dispatcher.ProcessDueDeliveries(ctx, storage.DeliveryChannelEmail, 10)
	if err != nil {
		t.Fatalf("ProcessDueDeliveries: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed %d deliveries before due time", processed)
	}

	// Past the backoff the sender has recovered.
	td.now = td.now.Add(2 * time.Minute)
	td.email.err = nil
	processed, err = td.dispatcher.ProcessDueDeliveries(ctx, storage.DeliveryChannelEmail, 10)
	if err != nil {
		t.Fatalf("ProcessDueDeliveries: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed %d deliveries, want 1", processed)
	}
	email := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelEmail)
	if email.Status != storage.DeliveryStatusDelivered || email.DeliveredAt == nil {
		t.Fatalf("unexpected email delivery state: %+v", email)
	}
	if len(td.email.sent) != 1 {
		t.Fatalf("expected one delivered email, got %d", len(td.email.sent))
	}
}

func TestProcessDueDeliveriesSkipsExhaustedAttempts(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{RetryBaseDelay: time.Second, RetryMaxDelay: time.Second, MaxAttempts: 2})
	ctx := context.Background()
	td.email.err = errors.New("smtp timeout")

	receipt, err := td.dispatcher.Dispatch(ctx, DispatchInput{
		RecipientUserID: "user-1",
		MessageType:     "xp.level_up",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// Second attempt fails and reaches the cap; the next pass skips for good.
	td.now = td.now.Add(time.Minute)
	if _, err := td.dispatcher.ProcessDueDeliveries(ctx, storage.DeliveryChannelEmail, 10); err != nil {
		t.Fatalf("ProcessDueDeliveries: %v", err)
	}
	td.now = td.now.Add(time.Minute)
	if _, err := td.dispatcher.ProcessDueDeliveries(ctx, storage.DeliveryChannelEmail, 10); err != nil {
		t.Fatalf("ProcessDueDeliveries: %v", err)
	}

	email := td.store.delivery(t, receipt.NotificationID, storage.DeliveryChannelEmail)
	if email.Status != storage.DeliveryStatusSkipped {
		t.Fatalf("unexpected email delivery state: %+v", email)
	}
	if email.LastError != "attempt limit reached" {
		t.Fatalf("unexpected skip reason %q", email.LastError)
	}

	// Skipped deliveries are terminal.
	td.now = td.now.Add(time.Minute)
	processed, err := td.dispatcher.ProcessDueDeliveries(ctx, storage.DeliveryChannelEmail, 10)
	if err != nil {
		t.Fatalf("ProcessDueDeliveries: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed %d terminal deliveries", processed)
	}
}

func TestProcessDueDeliveriesRejectsInAppChannel(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	if _, err := td.dispatcher.ProcessDueDeliveries(context.Background(), storage.DeliveryChannelInApp, 10); err == nil {
		t.Fatal("expected error for in-app channel")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{RetryBaseDelay: 30 * time.Second, RetryMaxDelay: 4 * time.Minute})
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 4 * time.Minute},
		{10, 4 * time.Minute},
	}
	for _, tc := range cases {
		if got := td.dispatcher.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRegisterPushSubscriptionValidation(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{Kind: storage.SubscriptionKindReal, Endpoint: "https://push.example.com"}); !errors.Is(err, ErrRecipientUserIDRequired) {
		t.Fatalf("expected ErrRecipientUserIDRequired, got %v", err)
	}
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{UserID: "user-1", Kind: storage.SubscriptionKindReal}); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{UserID: "user-1", Kind: "carrier-pigeon"}); !errors.Is(err, ErrUnknownSubscriptionKind) {
		t.Fatalf("expected ErrUnknownSubscriptionKind, got %v", err)
	}

	// Mock registrations drop any provided endpoint.
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{UserID: "user-1", Kind: storage.SubscriptionKindMock, Endpoint: "https://ignored"}); err != nil {
		t.Fatalf("RegisterPushSubscription: %v", err)
	}
	subscription, err := td.store.GetPushSubscription(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPushSubscription: %v", err)
	}
	if subscription.Kind != storage.SubscriptionKindMock || subscription.Endpoint != "" {
		t.Fatalf("unexpected stored subscription: %+v", subscription)
	}
}

func TestUnregisterPushSubscriptionIsIdempotent(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	if err := td.dispatcher.UnregisterPushSubscription(ctx, "user-1"); err != nil {
		t.Fatalf("UnregisterPushSubscription on absent registration: %v", err)
	}
	if err := td.dispatcher.RegisterPushSubscription(ctx, RegisterPushInput{UserID: "user-1", Kind: storage.SubscriptionKindMock}); err != nil {
		t.Fatalf("RegisterPushSubscription: %v", err)
	}
	if err := td.dispatcher.UnregisterPushSubscription(ctx, "user-1"); err != nil {
		t.Fatalf("UnregisterPushSubscription: %v", err)
	}
	if _, err := td.store.GetPushSubscription(ctx, "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected removed subscription, got %v", err)
	}
}

func TestInboxListCountAndMarkRead(t *testing.T) {
	t.Parallel()

	td := newTestDispatcher(t, Config{})
	ctx := context.Background()

	first, err := td.dispatcher.Dispatch(ctx, DispatchInput{RecipientUserID: "user-1", MessageType: "xp.level_up"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	td.now = td.now.Add(time.Minute)
	if _, err := td.dispatcher.Dispatch(ctx, DispatchInput{RecipientUserID: "user-1", MessageType: "badge.granted"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	page, err := td.dispatcher.ListInbox(ctx, ListInboxInput{RecipientUserID: "user-1"})
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(page.Notifications) != 2 {
		t.Fatalf("expected 2 inbox items, got %d", len(page.Notifications))
	}
	if page.Notifications[0].MessageType != "badge.granted" {
		t.Fatalf("inbox not newest first: %q", page.Notifications[0].MessageType)
	}

	if count, err := td.dispatcher.CountUnread(ctx, "user-1"); err != nil || count != 2 {
		t.Fatalf("CountUnread = %d, %v; want 2", count, err)
	}
	read, err := td.dispatcher.MarkRead(ctx, "user-1", first.NotificationID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if read.ReadAt == nil {
		t.Fatal("MarkRead did not set ReadAt")
	}
	if count, err := td.dispatcher.CountUnread(ctx, "user-1"); err != nil || count != 1 {
		t.Fatalf("CountUnread after read = %d, %v; want 1", count, err)
	}
	if _, err := td.dispatcher.MarkRead(ctx, "user-2", first.NotificationID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong recipient, got %v", err)
	}
}
