package domain

// ActionType identifies one qualifying user action in the closed catalog.
type ActionType string

const (
	// ActionPostCreation is awarded when a user publishes a post.
	ActionPostCreation ActionType = "post_creation"
	// ActionCommentCreation is awarded when a user publishes a comment.
	ActionCommentCreation ActionType = "comment_creation"
	// ActionFollow is awarded when a user follows another user.
	ActionFollow ActionType = "follow"
	// ActionLikeReceived is awarded to an author whose content was liked.
	ActionLikeReceived ActionType = "like_received"
	// ActionAvatarCustomized is awarded when a user sets a custom avatar.
	ActionAvatarCustomized ActionType = "avatar_customized"

	// ActionStreakBonus records streak bonus XP. Internal, cap-exempt.
	ActionStreakBonus ActionType = "streak_bonus"
	// ActionMissionReward records mission completion XP. Internal, cap-exempt.
	ActionMissionReward ActionType = "mission_reward"
	// ActionBadgeReward records secondary badge XP. Internal, cap-exempt.
	ActionBadgeReward ActionType = "badge_reward"
)

// MetricKind identifies one user statistic a mission step or badge predicate
// can target. Steps declare a kind directly; matching an action to a step is
// an exact table lookup, never free-text search.
type MetricKind string

const (
	// MetricPosts counts posts the user authored.
	MetricPosts MetricKind = "posts"
	// MetricComments counts comments the user authored.
	MetricComments MetricKind = "comments"
	// MetricFollowers counts users following this user.
	MetricFollowers MetricKind = "followers"
	// MetricLikesReceived counts likes the user's content received.
	MetricLikesReceived MetricKind = "likes_received"
	// MetricStreakDays is the user's current consecutive-day streak.
	MetricStreakDays MetricKind = "streak_days"
)

// actionMetrics maps each externally-triggered action to the single metric it
// advances. Internal reward actions advance no metric.
var actionMetrics = map[ActionType]MetricKind{
	ActionPostCreation:     MetricPosts,
	ActionCommentCreation:  MetricComments,
	ActionFollow:           MetricFollowers,
	ActionLikeReceived:     MetricLikesReceived,
	ActionAvatarCustomized: "",
}

// contentActions are actions whose awards carry a quality multiplier when the
// submitted content satisfies the helpful-content heuristic.
var contentActions = map[ActionType]bool{
	ActionPostCreation:    true,
	ActionCommentCreation: true,
}

// KnownAction reports whether the action belongs to the external catalog.
func KnownAction(action ActionType) bool {
	_, ok := actionMetrics[action]
	return ok
}

// MetricForAction returns the metric an action advances, if any.
func MetricForAction(action ActionType) (MetricKind, bool) {
	metric, ok := actionMetrics[action]
	if !ok || metric == "" {
		return "", false
	}
	return metric, true
}

// KnownMetric reports whether the metric kind belongs to the closed set.
func KnownMetric(metric MetricKind) bool {
	switch metric {
	case MetricPosts, MetricComments, MetricFollowers, MetricLikesReceived, MetricStreakDays:
		return true
	}
	return false
}
