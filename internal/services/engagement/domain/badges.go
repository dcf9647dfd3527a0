package domain

import "fmt"

// UserStats is the snapshot a badge predicate evaluates against.
type UserStats struct {
	Posts         int
	Comments      int
	Followers     int
	LikesReceived int
	StreakDays    int
	HasAvatar     bool
}

// BadgeDefinition declares one one-time achievement.
type BadgeDefinition struct {
	ID          string
	Name        string
	Description string
	XPReward    int
	Predicate   func(UserStats) bool
}

// BadgeRegistry is the configured set of grantable badges.
type BadgeRegistry struct {
	badges []BadgeDefinition
}

// NewBadgeRegistry validates and wraps badge definitions.
func NewBadgeRegistry(badges []BadgeDefinition) (*BadgeRegistry, error) {
	seen := make(map[string]bool, len(badges))
	for _, badge := range badges {
		if badge.ID == "" {
			return nil, fmt.Errorf("badge id is required")
		}
		if seen[badge.ID] {
			return nil, fmt.Errorf("duplicate badge id %q", badge.ID)
		}
		if badge.Predicate == nil {
			return nil, fmt.Errorf("badge %q has no predicate", badge.ID)
		}
		if badge.XPReward < 0 {
			return nil, fmt.Errorf("badge %q has negative xp reward", badge.ID)
		}
		seen[badge.ID] = true
	}
	return &BadgeRegistry{badges: badges}, nil
}

// Definitions returns the registered badge definitions in registration order.
func (r *BadgeRegistry) Definitions() []BadgeDefinition {
	if r == nil {
		return nil
	}
	return r.badges
}

// Definition returns one badge definition by id.
func (r *BadgeRegistry) Definition(badgeID string) (BadgeDefinition, bool) {
	if r == nil {
		return BadgeDefinition{}, false
	}
	for _, badge := range r.badges {
		if badge.ID == badgeID {
			return badge, true
		}
	}
	return BadgeDefinition{}, false
}

// DefaultBadgeRegistry returns the standard badge set.
func DefaultBadgeRegistry() *BadgeRegistry {
	registry, err := NewBadgeRegistry([]BadgeDefinition{
		{
			ID:          "first-post",
			Name:        "First Post",
			Description: "Published your first post.",
			XPReward:    10,
			Predicate:   func(s UserStats) bool { return s.Posts >= 1 },
		},
		{
			ID:          "prolific-poster",
			Name:        "Prolific Poster",
			Description: "Published 50 posts.",
			XPReward:    100,
			Predicate:   func(s UserStats) bool { return s.Posts >= 50 },
		},
		{
			ID:          "conversationalist",
			Name:        "Conversationalist",
			Description: "Wrote 100 comments.",
			XPReward:    100,
			Predicate:   func(s UserStats) bool { return s.Comments >= 100 },
		},
		{
			ID:          "popular",
			Name:        "Popular",
			Description: "Reached 25 followers.",
			XPReward:    75,
			Predicate:   func(s UserStats) bool { return s.Followers >= 25 },
		},
		{
			ID:          "streak-week",
			Name:        "Week Streak",
			Description: "Active seven days in a row.",
			XPReward:    50,
			Predicate:   func(s UserStats) bool { return s.StreakDays >= 7 },
		},
		{
			ID:          "first-avatar",
			Name:        "Fresh Face",
			Description: "Set your first custom avatar.",
			XPReward:    10,
			Predicate:   func(s UserStats) bool { return s.HasAvatar },
		},
	})
	if err != nil {
		panic(err)
	}
	return registry
}

// BadgeGrant reports one badge granted during an evaluation pass.
type BadgeGrant struct {
	BadgeID  string
	Name     string
	XPReward int
}
