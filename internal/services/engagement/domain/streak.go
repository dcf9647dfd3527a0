package domain

// StreakSchedule maps consecutive-day streak lengths to one-time bonus XP.
// A bonus applies only on the day the streak reaches the threshold; repeated
// activity on the same day never re-triggers it.
type StreakSchedule map[int]int

// DefaultStreakSchedule returns the standard streak bonus thresholds.
func DefaultStreakSchedule() StreakSchedule {
	return StreakSchedule{
		3:  15,
		7:  50,
		14: 120,
		30: 300,
	}
}

// BonusAt returns the bonus XP for a streak that just reached streakDays,
// or zero when the length is not a configured threshold.
func (s StreakSchedule) BonusAt(streakDays int) int {
	return s[streakDays]
}
