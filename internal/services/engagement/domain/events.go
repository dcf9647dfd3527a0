package domain

import "context"

// EventType identifies one terminal engagement event handed to notifications.
type EventType string

const (
	// EventLevelUp fires when an award crosses a level threshold.
	EventLevelUp EventType = "xp.level_up"
	// EventRankUp fires when a level-up also crosses a rank bucket.
	EventRankUp EventType = "xp.rank_up"
	// EventBadgeGranted fires when a badge predicate is first satisfied.
	EventBadgeGranted EventType = "badge.granted"
	// EventMissionCompleted fires when the final mission step completes.
	EventMissionCompleted EventType = "mission.completed"
	// EventOvertake fires for both parties of a leaderboard rank flip.
	EventOvertake EventType = "leaderboard.overtake"
)

// Event is one terminal engagement occurrence to fan out. Events are
// ephemeral; the notifications service owns their delivery lifecycle.
type Event struct {
	RecipientUserID string
	Type            EventType
	DedupeKey       string
	Payload         map[string]string
}

// Notifier consumes terminal engagement events. Implementations must not
// block the engine: delivery failures are the notifier's concern and are
// never surfaced to the triggering business action.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
