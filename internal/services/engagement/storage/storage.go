// Package storage defines persistence contracts for the engagement engine.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested engagement record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// MissionStatus identifies one mission progress lifecycle state.
type MissionStatus string

const (
	// MissionStatusActive means the user joined the mission and steps remain.
	MissionStatusActive MissionStatus = "active"
	// MissionStatusCompleted means every step finished and the reward was granted.
	MissionStatusCompleted MissionStatus = "completed"
)

// LedgerEntry stores one immutable XP award record.
type LedgerEntry struct {
	ID           string
	UserID       string
	ActionType   string
	RawAmount    int
	BonusAmount  int
	CappedAmount int
	SourceRef    string
	AwardedAt    time.Time
}

// LedgerPage stores one page of ledger entries for admin browsing.
type LedgerPage struct {
	Entries       []LedgerEntry
	NextPageToken string
}

// LedgerFilter carries a translated WHERE fragment applied to ledger listings.
type LedgerFilter struct {
	Clause string
	Params []any
}

// Profile stores per-user engagement aggregates owned by this engine.
type Profile struct {
	UserID           string
	CumulativePoints int
	StreakDays       int
	LastActiveOn     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BadgeGrantRecord stores one immutable badge membership fact.
type BadgeGrantRecord struct {
	UserID    string
	BadgeID   string
	GrantedAt time.Time
}

// MissionProgressRecord stores one user's progress through a mission.
type MissionProgressRecord struct {
	UserID         string
	MissionID      string
	Status         MissionStatus
	StepsCompleted []string
	JoinedAt       time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	XPEarned       int
}

// WindowTotal stores one user's aggregated points over a ledger window.
type WindowTotal struct {
	UserID string
	Points int
}

// LedgerStore persists the append-only XP award ledger.
type LedgerStore interface {
	// AppendEntry atomically inserts one ledger row and increments the
	// user's cumulative points by the entry's capped amount, returning the
	// new total. A duplicate (user, action, source_ref) append returns
	// ErrConflict without mutating any state.
	AppendEntry(ctx context.Context, entry LedgerEntry) (int, error)
	SumCappedSameDay(ctx context.Context, userID string, actionType string, dayStart, dayEnd time.Time) (int, error)
	CountEntriesByAction(ctx context.Context, userID string, actionType string) (int, error)
	CountEntriesBySourceRef(ctx context.Context, actionType string, sourceRef string) (int, error)
	AggregateWindowTotals(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]WindowTotal, error)
	ListEntries(ctx context.Context, filter LedgerFilter, pageSize int, pageToken string) (LedgerPage, error)
}

// ProfileStore persists per-user engagement aggregates.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, userID string, now time.Time) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
	// TouchActivity advances the user's consecutive-day streak for the given
	// UTC day key (extend on the day after the last active day, reset to one
	// after a gap, no-op within the same day). It reports the resulting
	// streak length and whether this call advanced it.
	TouchActivity(ctx context.Context, userID string, day string, now time.Time) (int, bool, error)
	ListTopProfiles(ctx context.Context, limit int) ([]Profile, error)
	CountProfilesWithMorePoints(ctx context.Context, points int) (int, error)
	ListProfilesInPointsRange(ctx context.Context, minPoints, maxPoints int) ([]Profile, error)
}

// BadgeStore persists one-time badge grants.
type BadgeStore interface {
	ListBadgeIDsByUser(ctx context.Context, userID string) ([]string, error)
	// GrantBadge inserts one badge membership fact. Granting an already-held
	// badge returns ErrConflict without mutating any state.
	GrantBadge(ctx context.Context, record BadgeGrantRecord) error
}

// MissionStore persists mission progress state machines.
type MissionStore interface {
	// JoinMission creates one active progress row with no completed steps.
	// Joining an already-joined mission returns ErrConflict.
	JoinMission(ctx context.Context, record MissionProgressRecord) error
	GetProgress(ctx context.Context, userID string, missionID string) (MissionProgressRecord, error)
	ListActiveProgressByUser(ctx context.Context, userID string) ([]MissionProgressRecord, error)
	// AddCompletedStep records one step completion with set semantics and
	// reports whether the step was newly added.
	AddCompletedStep(ctx context.Context, userID string, missionID string, stepID string, completedAt time.Time) (bool, error)
	// CompleteMission transitions the progress row to completed only when it
	// is currently active, reporting whether this call won the transition.
	CompleteMission(ctx context.Context, userID string, missionID string, completedAt time.Time, xpEarned int) (bool, error)
}
