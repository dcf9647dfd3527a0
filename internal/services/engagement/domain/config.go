package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// AwardConfig is the externally tunable award surface: base XP per action,
// per-action daily caps, the helpful-content multiplier, the streak bonus
// schedule, and the level threshold table.
type AwardConfig struct {
	BaseXP            map[ActionType]int
	DailyCap          map[ActionType]int
	QualityMultiplier int
	HelpfulMinRunes   int
	Streaks           StreakSchedule
	Levels            Levels
}

// DefaultAwardConfig returns the standard award tables.
func DefaultAwardConfig() AwardConfig {
	return AwardConfig{
		BaseXP: map[ActionType]int{
			ActionPostCreation:     25,
			ActionCommentCreation:  10,
			ActionFollow:           5,
			ActionLikeReceived:     2,
			ActionAvatarCustomized: 10,
		},
		DailyCap: map[ActionType]int{
			ActionPostCreation:     100,
			ActionCommentCreation:  50,
			ActionFollow:           25,
			ActionLikeReceived:     40,
			ActionAvatarCustomized: 10,
		},
		QualityMultiplier: 2,
		HelpfulMinRunes:   280,
		Streaks:           DefaultStreakSchedule(),
		Levels:            DefaultLevels(),
	}
}

// Validate checks the configuration tables for internal consistency.
func (c AwardConfig) Validate() error {
	if len(c.BaseXP) == 0 {
		return fmt.Errorf("%w: base xp table is empty", ErrInvalidConfig)
	}
	for action, base := range c.BaseXP {
		if !KnownAction(action) {
			return fmt.Errorf("%w: base xp for unknown action %q", ErrInvalidConfig, action)
		}
		if base < 0 {
			return fmt.Errorf("%w: negative base xp for action %q", ErrInvalidConfig, action)
		}
	}
	for action, dailyCap := range c.DailyCap {
		if !KnownAction(action) {
			return fmt.Errorf("%w: daily cap for unknown action %q", ErrInvalidConfig, action)
		}
		if dailyCap < 0 {
			return fmt.Errorf("%w: negative daily cap for action %q", ErrInvalidConfig, action)
		}
	}
	if c.QualityMultiplier < 1 {
		return fmt.Errorf("%w: quality multiplier must be at least one", ErrInvalidConfig)
	}
	for streak, bonus := range c.Streaks {
		if streak <= 0 || bonus <= 0 {
			return fmt.Errorf("%w: streak schedule entries must be positive", ErrInvalidConfig)
		}
	}
	previous := 0
	for i, threshold := range c.Levels {
		if threshold <= previous {
			return fmt.Errorf("%w: level thresholds must strictly increase (index %d)", ErrInvalidConfig, i)
		}
		previous = threshold
	}
	return nil
}

// HelpfulContent reports whether submitted content satisfies the quality
// heuristic: a non-trivial body or a fenced code block.
func (c AwardConfig) HelpfulContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "```") {
		return true
	}
	minRunes := c.HelpfulMinRunes
	if minRunes <= 0 {
		return false
	}
	return utf8.RuneCountInString(trimmed) >= minRunes
}
