package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emberforum/engagement/internal/services/engagement/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	entries  []storage.LedgerEntry
	profiles map[string]*storage.Profile
	badges   map[string]map[string]bool
	missions map[string]*storage.MissionProgressRecord
	steps    map[string]map[string]time.Time

	// touchConflicts makes the next N TouchActivity calls lose the race.
	touchConflicts int
	lastFilter     storage.LedgerFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*storage.Profile),
		badges:   make(map[string]map[string]bool),
		missions: make(map[string]*storage.MissionProgressRecord),
		steps:    make(map[string]map[string]time.Time),
	}
}

func missionKey(userID, missionID string) string {
	return userID + "|" + missionID
}

func (f *fakeStore) AppendEntry(_ context.Context, entry storage.LedgerEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.SourceRef != "" {
		for _, existing := range f.entries {
			if existing.UserID == entry.UserID && existing.ActionType == entry.ActionType && existing.SourceRef == entry.SourceRef {
				return 0, storage.ErrConflict
			}
		}
	}
	profile, ok := f.profiles[entry.UserID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	f.entries = append(f.entries, entry)
	profile.CumulativePoints += entry.CappedAmount
	profile.UpdatedAt = entry.AwardedAt
	return profile.CumulativePoints, nil
}

func (f *fakeStore) SumCappedSameDay(_ context.Context, userID string, actionType string, dayStart, dayEnd time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, entry := range f.entries {
		if entry.UserID != userID || entry.ActionType != actionType {
			continue
		}
		if entry.AwardedAt.Before(dayStart) || !entry.AwardedAt.Before(dayEnd) {
			continue
		}
		sum += entry.CappedAmount
	}
	return sum, nil
}

func (f *fakeStore) CountEntriesByAction(_ context.Context, userID string, actionType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entry := range f.entries {
		if entry.UserID == userID && entry.ActionType == actionType {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountEntriesBySourceRef(_ context.Context, actionType string, sourceRef string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entry := range f.entries {
		if entry.ActionType == actionType && entry.SourceRef == sourceRef {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) AggregateWindowTotals(_ context.Context, windowStart, windowEnd time.Time, limit int) ([]storage.WindowTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser := make(map[string]int)
	for _, entry := range f.entries {
		if entry.AwardedAt.Before(windowStart) || !entry.AwardedAt.Before(windowEnd) {
			continue
		}
		byUser[entry.UserID] += entry.CappedAmount
	}
	totals := make([]storage.WindowTotal, 0, len(byUser))
	for userID, points := range byUser {
		totals = append(totals, storage.WindowTotal{UserID: userID, Points: points})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Points != totals[j].Points {
			return totals[i].Points > totals[j].Points
		}
		left, right := f.profiles[totals[i].UserID], f.profiles[totals[j].UserID]
		if left != nil && right != nil && !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.Before(right.CreatedAt)
		}
		return totals[i].UserID < totals[j].UserID
	})
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

func (f *fakeStore) ListEntries(_ context.Context, filter storage.LedgerFilter, pageSize int, pageToken string) (storage.LedgerPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter

	sorted := make([]storage.LedgerEntry, len(f.entries))
	copy(sorted, f.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].AwardedAt.Equal(sorted[j].AwardedAt) {
			return sorted[i].AwardedAt.After(sorted[j].AwardedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	start := 0
	if pageToken != "" {
		for i, entry := range sorted {
			if entry.ID == pageToken {
				start = i + 1
				break
			}
		}
	}
	page := storage.LedgerPage{}
	for i := start; i < len(sorted) && len(page.Entries) < pageSize; i++ {
		page.Entries = append(page.Entries, sorted[i])
	}
	if start+len(page.Entries) < len(sorted) && len(page.Entries) > 0 {
		page.NextPageToken = page.Entries[len(page.Entries)-1].ID
	}
	return page, nil
}

func (f *fakeStore) EnsureProfile(_ context.Context, userID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[userID]; ok {
		return nil
	}
	f.profiles[userID] = &storage.Profile{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (storage.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return storage.Profile{}, storage.ErrNotFound
	}
	return *profile, nil
}

func (f *fakeStore) TouchActivity(_ context.Context, userID string, day string, now time.Time) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchConflicts > 0 {
		f.touchConflicts--
		return 0, false, storage.ErrConflict
	}
	profile, ok := f.profiles[userID]
	if !ok {
		return 0, false, storage.ErrNotFound
	}
	if profile.LastActiveOn == day {
		return profile.StreakDays, false, nil
	}
	dayValue, err := time.Parse(dayKeyLayout, day)
	if err != nil {
		return 0, false, err
	}
	previousDay := dayValue.AddDate(0, 0, -1).Format(dayKeyLayout)
	if profile.LastActiveOn == previousDay {
		profile.StreakDays++
	} else {
		profile.StreakDays = 1
	}
	profile.LastActiveOn = day
	profile.UpdatedAt = now
	return profile.StreakDays, true, nil
}

func (f *fakeStore) ListTopProfiles(_ context.Context, limit int) ([]storage.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profiles := make([]storage.Profile, 0, len(f.profiles))
	for _, profile := range f.profiles {
		profiles = append(profiles, *profile)
	}
	sortProfiles(profiles)
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (f *fakeStore) CountProfilesWithMorePoints(_ context.Context, points int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, profile := range f.profiles {
		if profile.CumulativePoints > points {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListProfilesInPointsRange(_ context.Context, minPoints, maxPoints int) ([]storage.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var profiles []storage.Profile
	for _, profile := range f.profiles {
		if profile.CumulativePoints >= minPoints && profile.CumulativePoints <= maxPoints {
			profiles = append(profiles, *profile)
		}
	}
	sortProfiles(profiles)
	return profiles, nil
}

func sortProfiles(profiles []storage.Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CumulativePoints != profiles[j].CumulativePoints {
			return profiles[i].CumulativePoints > profiles[j].CumulativePoints
		}
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].UserID < profiles[j].UserID
	})
}

func (f *fakeStore) ListBadgeIDsByUser(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var badgeIDs []string
	for badgeID := range f.badges[userID] {
		badgeIDs = append(badgeIDs, badgeID)
	}
	sort.Strings(badgeIDs)
	return badgeIDs, nil
}

func (f *fakeStore) GrantBadge(_ context.Context, record storage.BadgeGrantRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	held := f.badges[record.UserID]
	if held == nil {
		held = make(map[string]bool)
		f.badges[record.UserID] = held
	}
	if held[record.BadgeID] {
		return storage.ErrConflict
	}
	held[record.BadgeID] = true
	return nil
}

func (f *fakeStore) JoinMission(_ context.Context, record storage.MissionProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := missionKey(record.UserID, record.MissionID)
	if _, ok := f.missions[key]; ok {
		return storage.ErrConflict
	}
	stored := record
	f.missions[key] = &stored
	return nil
}

func (f *fakeStore) GetProgress(_ context.Context, userID string, missionID string) (storage.MissionProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.missions[missionKey(userID, missionID)]
	if !ok {
		return storage.MissionProgressRecord{}, storage.ErrNotFound
	}
	return f.progressCopy(record), nil
}

func (f *fakeStore) ListActiveProgressByUser(_ context.Context, userID string) ([]storage.MissionProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []storage.MissionProgressRecord
	for _, record := range f.missions {
		if record.UserID == userID && record.Status == storage.MissionStatusActive {
			records = append(records, f.progressCopy(record))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].MissionID < records[j].MissionID })
	return records, nil
}

func (f *fakeStore) AddCompletedStep(_ context.Context, userID string, missionID string, stepID string, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := missionKey(userID, missionID)
	done := f.steps[key]
	if done == nil {
		done = make(map[string]time.Time)
		f.steps[key] = done
	}
	if _, ok := done[stepID]; ok {
		return false, nil
	}
	done[stepID] = completedAt
	if record, ok := f.missions[key]; ok {
		record.UpdatedAt = completedAt
	}
	return true, nil
}

func (f *fakeStore) CompleteMission(_ context.Context, userID string, missionID string, completedAt time.Time, xpEarned int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.missions[missionKey(userID, missionID)]
	if !ok || record.Status != storage.MissionStatusActive {
		return false, nil
	}
	record.Status = storage.MissionStatusCompleted
	completed := completedAt
	record.CompletedAt = &completed
	record.XPEarned = xpEarned
	record.UpdatedAt = completedAt
	return true, nil
}

func (f *fakeStore) progressCopy(record *storage.MissionProgressRecord) storage.MissionProgressRecord {
	copied := *record
	for stepID := range f.steps[missionKey(record.UserID, record.MissionID)] {
		copied.StepsCompleted = append(copied.StepsCompleted, stepID)
	}
	sort.Strings(copied.StepsCompleted)
	return copied
}

func (f *fakeStore) entriesByAction(actionType ActionType) []storage.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []storage.LedgerEntry
	for _, entry := range f.entries {
		if entry.ActionType == string(actionType) {
			matched = append(matched, entry)
		}
	}
	return matched
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) byType(eventType EventType) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []Event
	for _, event := range f.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type sequentialIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%03d", g.next), nil
}
