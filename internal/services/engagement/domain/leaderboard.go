package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emberforum/engagement/internal/services/engagement/storage"
)

// Window selects the ledger span a leaderboard aggregates.
type Window string

const (
	// WindowAllTime ranks by cumulative points.
	WindowAllTime Window = "all-time"
	// WindowWeekly ranks by points earned in the trailing seven days.
	WindowWeekly Window = "weekly"
	// WindowMonthly ranks by points earned in the trailing thirty days.
	WindowMonthly Window = "monthly"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Standing is one leaderboard row. Level and rank always derive from
// all-time points regardless of the window.
type Standing struct {
	UserID string
	Points int
	Level  int
	Rank   RankName
}

// Overtake reports one rank-order flip between two specific users.
type Overtake struct {
	WinnerID string
	LoserID  string
}

// Leaderboard returns the top standings for one window. Ordering is a total
// order: points descending, then account-creation order, then user id, so
// repeated queries over unchanged data return identical rows.
func (e *Engine) Leaderboard(ctx context.Context, window Window, limit int) ([]Standing, error) {
	if e == nil || e.store == nil {
		return nil, ErrStoreNotConfigured
	}
	switch {
	case limit <= 0:
		limit = defaultLeaderboardLimit
	case limit > maxLeaderboardLimit:
		limit = maxLeaderboardLimit
	}

	switch window {
	case WindowAllTime, "":
		profiles, err := e.store.ListTopProfiles(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list top profiles: %w", err)
		}
		standings := make([]Standing, 0, len(profiles))
		for _, profile := range profiles {
			level := e.cfg.Levels.Level(profile.CumulativePoints)
			standings = append(standings, Standing{
				UserID: profile.UserID,
				Points: profile.CumulativePoints,
				Level:  level,
				Rank:   Rank(level),
			})
		}
		return standings, nil
	case WindowWeekly, WindowMonthly:
		now := e.nowUTC()
		span := 7 * 24 * time.Hour
		if window == WindowMonthly {
			span = 30 * 24 * time.Hour
		}
		totals, err := e.store.AggregateWindowTotals(ctx, now.Add(-span), now, limit)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s totals: %w", window, err)
		}
		standings := make([]Standing, 0, len(totals))
		for _, total := range totals {
			profile, err := e.store.GetProfile(ctx, total.UserID)
			if err != nil {
				return nil, fmt.Errorf("load profile %s: %w", total.UserID, err)
			}
			level := e.cfg.Levels.Level(profile.CumulativePoints)
			standings = append(standings, Standing{
				UserID: total.UserID,
				Points: total.Points,
				Level:  level,
				Rank:   Rank(level),
			})
		}
		return standings, nil
	}
	return nil, fmt.Errorf("unknown leaderboard window %q", window)
}

// ComputeRank returns the user's all-time position: the count of users with
// strictly more points, plus one.
func (e *Engine) ComputeRank(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get profile: %w", err)
	}
	ahead, err := e.store.CountProfilesWithMorePoints(ctx, profile.CumulativePoints)
	if err != nil {
		return 0, fmt.Errorf("count profiles ahead: %w", err)
	}
	return ahead + 1, nil
}

// emitOvertakes detects rank-order flips caused by one user's points change
// and emits an overtake event for both parties. Detection is best-effort:
// failures are logged, never surfaced to the award path.
func (e *Engine) emitOvertakes(ctx context.Context, userID string, pointsBefore, pointsAfter int, now time.Time) {
	if e.notifier == nil || pointsAfter <= pointsBefore {
		return
	}
	mover, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		e.logf("overtake detection: load mover %s: %v", userID, err)
		return
	}
	candidates, err := e.store.ListProfilesInPointsRange(ctx, pointsBefore, pointsAfter)
	if err != nil {
		e.logf("overtake detection for %s: %v", userID, err)
		return
	}
	for _, other := range candidates {
		if other.UserID == userID {
			continue
		}
		before := mover
		before.CumulativePoints = pointsBefore
		after := mover
		after.CumulativePoints = pointsAfter
		if !standsAbove(other, before) || !standsAbove(after, other) {
			continue
		}
		dedupe := fmt.Sprintf("overtake:%s:%s:%s", userID, other.UserID, now.Format(dayKeyLayout))
		e.notify(ctx, Event{
			RecipientUserID: userID,
			Type:            EventOvertake,
			DedupeKey:       dedupe + ":winner",
			Payload: map[string]string{
				"role":          "winner",
				"other_user_id": other.UserID,
			},
		})
		e.notify(ctx, Event{
			RecipientUserID: other.UserID,
			Type:            EventOvertake,
			DedupeKey:       dedupe + ":loser",
			Payload: map[string]string{
				"role":          "loser",
				"other_user_id": userID,
			},
		})
	}
}

// standsAbove reports whether a ranks ahead of b under the leaderboard's
// total order.
func standsAbove(a, b storage.Profile) bool {
	if a.CumulativePoints != b.CumulativePoints {
		return a.CumulativePoints > b.CumulativePoints
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}
