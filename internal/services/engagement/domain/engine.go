// Package domain implements the engagement engine: XP awards, levels and
// ranks, badges, mission progress, and leaderboard standing.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emberforum/engagement/internal/platform/id"
	"github.com/emberforum/engagement/internal/services/engagement/storage"
)

const dayKeyLayout = "2006-01-02"

// Store is the combined persistence boundary the engine requires.
type Store interface {
	storage.LedgerStore
	storage.ProfileStore
	storage.BadgeStore
	storage.MissionStore
}

// Deps wires the engine's collaborators. Store is required; the rest have
// working defaults.
type Deps struct {
	Store    Store
	Missions *MissionCatalog
	Badges   *BadgeRegistry
	Notifier Notifier
	Clock    func() time.Time
	NewID    func() (string, error)
	Logf     func(format string, args ...any)
}

// Engine orchestrates engagement state transitions. All methods are safe for
// concurrent use; correctness under races rests on the store's atomic
// append, set-insert, and conditional-update primitives.
type Engine struct {
	cfg      AwardConfig
	store    Store
	missions *MissionCatalog
	badges   *BadgeRegistry
	notifier Notifier
	clock    func() time.Time
	newID    func() (string, error)
	logf     func(format string, args ...any)
}

// NewEngine validates configuration and constructs the engine.
func NewEngine(cfg AwardConfig, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, ErrStoreNotConfigured
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine := &Engine{
		cfg:      cfg,
		store:    deps.Store,
		missions: deps.Missions,
		badges:   deps.Badges,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		newID:    deps.NewID,
		logf:     deps.Logf,
	}
	if engine.clock == nil {
		engine.clock = time.Now
	}
	if engine.newID == nil {
		engine.newID = id.NewID
	}
	if engine.logf == nil {
		engine.logf = log.Printf
	}
	return engine, nil
}

// AwardInput describes one XP award request from an action handler.
type AwardInput struct {
	UserID string
	Action ActionType
	// SourceRef identifies the triggering entity (post id, comment id).
	// When set, a repeated award for the same (user, action, source)
	// becomes a no-op instead of double-counting.
	SourceRef string
	// Content is the submitted body for content-creation actions, used by
	// the helpful-content heuristic. Ignored for other actions.
	Content string
}

// AwardResult reports the outcome of one award.
type AwardResult struct {
	EntryID      string
	RawAmount    int
	CappedAmount int
	StreakBonus  int
	TotalPoints  int
	Level        int
	Rank         RankName
	LeveledUp    bool
	RankedUp     bool
	// Duplicate is true when the award was already recorded for the same
	// source reference and nothing changed.
	Duplicate bool
	Badges    []BadgeGrant
}

// AwardXP computes, caps, and records one XP award, then evaluates badge
// predicates and emits level-up, rank-up, badge, and overtake events.
func (e *Engine) AwardXP(ctx context.Context, input AwardInput) (AwardResult, error) {
	if e == nil || e.store == nil {
		return AwardResult{}, ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return AwardResult{}, ErrUserIDRequired
	}
	if !KnownAction(input.Action) {
		return AwardResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, input.Action)
	}

	now := e.nowUTC()
	if err := e.store.EnsureProfile(ctx, userID, now); err != nil {
		return AwardResult{}, fmt.Errorf("ensure profile: %w", err)
	}

	base := e.cfg.BaseXP[input.Action]
	raw := base
	if contentActions[input.Action] && e.cfg.HelpfulContent(input.Content) {
		raw = base * e.cfg.QualityMultiplier
	}

	capped := raw
	if dailyCap, hasCap := e.cfg.DailyCap[input.Action]; hasCap {
		dayStart, dayEnd := dayBounds(now)
		awardedToday, err := e.store.SumCappedSameDay(ctx, userID, string(input.Action), dayStart, dayEnd)
		if err != nil {
			return AwardResult{}, fmt.Errorf("sum same-day awards: %w", err)
		}
		headroom := dailyCap - awardedToday
		if headroom < 0 {
			headroom = 0
		}
		if capped > headroom {
			capped = headroom
		}
	}

	entryID, err := e.newID()
	if err != nil {
		return AwardResult{}, fmt.Errorf("new ledger entry id: %w", err)
	}
	entry := storage.LedgerEntry{
		ID:           entryID,
		UserID:       userID,
		ActionType:   string(input.Action),
		RawAmount:    raw,
		BonusAmount:  raw - base,
		CappedAmount: capped,
		SourceRef:    strings.TrimSpace(input.SourceRef),
		AwardedAt:    now,
	}
	total, err := e.store.AppendEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) && entry.SourceRef != "" {
			return AwardResult{Duplicate: true}, nil
		}
		return AwardResult{}, fmt.Errorf("append ledger entry: %w", err)
	}
	totalBefore := total - capped

	// The activity touch runs after the dedupe check so a replayed award
	// does not count as daily activity.
	streakDays, streakAdvanced, err := e.touchActivity(ctx, userID, now)
	if err != nil {
		return AwardResult{}, err
	}

	streakBonus := 0
	if streakAdvanced {
		if bonus := e.cfg.Streaks.BonusAt(streakDays); bonus > 0 {
			bonusTotal, granted, err := e.appendReward(ctx, userID, ActionStreakBonus, bonus, "streak:"+userID+":"+now.Format(dayKeyLayout), now)
			if err != nil {
				return AwardResult{}, err
			}
			if granted {
				streakBonus = bonus
				total = bonusTotal
			}
		}
	}

	grants, grantTotal, err := e.evaluateBadges(ctx, userID, streakDays, now)
	if err != nil {
		// Badge evaluation is a secondary effect; the award itself stands.
		e.logf("evaluate badges for %s: %v", userID, err)
	} else if len(grants) > 0 {
		total = grantTotal
	}

	levelBefore := e.cfg.Levels.Level(totalBefore)
	levelAfter := e.cfg.Levels.Level(total)
	rankBefore := Rank(levelBefore)
	rankAfter := Rank(levelAfter)

	result := AwardResult{
		EntryID:      entryID,
		RawAmount:    raw,
		CappedAmount: capped,
		StreakBonus:  streakBonus,
		TotalPoints:  total,
		Level:        levelAfter,
		Rank:         rankAfter,
		LeveledUp:    levelAfter > levelBefore,
		RankedUp:     rankAfter != rankBefore,
		Badges:       grants,
	}

	if result.LeveledUp {
		e.notify(ctx, Event{
			RecipientUserID: userID,
			Type:            EventLevelUp,
			DedupeKey:       fmt.Sprintf("level:%s:%d", userID, levelAfter),
			Payload: map[string]string{
				"level": fmt.Sprintf("%d", levelAfter),
			},
		})
	}
	if result.RankedUp {
		e.notify(ctx, Event{
			RecipientUserID: userID,
			Type:            EventRankUp,
			DedupeKey:       fmt.Sprintf("rank:%s:%s", userID, rankAfter),
			Payload: map[string]string{
				"rank": string(rankAfter),
			},
		})
	}
	e.emitOvertakes(ctx, userID, totalBefore, total, now)

	return result, nil
}

// touchActivity advances the streak, retrying once on a lost upsert race.
func (e *Engine) touchActivity(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	day := now.Format(dayKeyLayout)
	streakDays, advanced, err := e.store.TouchActivity(ctx, userID, day, now)
	if errors.Is(err, storage.ErrConflict) {
		streakDays, advanced, err = e.store.TouchActivity(ctx, userID, day, now)
		if errors.Is(err, storage.ErrConflict) {
			return 0, false, ErrConcurrencyConflict
		}
	}
	if err != nil {
		return 0, false, fmt.Errorf("touch activity: %w", err)
	}
	return streakDays, advanced, nil
}

// appendReward records cap-exempt reward XP (streak, badge, mission). The
// source reference makes each reward idempotent; a conflicting append means
// the reward was already granted and reports granted=false.
func (e *Engine) appendReward(ctx context.Context, userID string, action ActionType, amount int, sourceRef string, now time.Time) (int, bool, error) {
	if amount <= 0 {
		return 0, false, nil
	}
	entryID, err := e.newID()
	if err != nil {
		return 0, false, fmt.Errorf("new reward entry id: %w", err)
	}
	total, err := e.store.AppendEntry(ctx, storage.LedgerEntry{
		ID:           entryID,
		UserID:       userID,
		ActionType:   string(action),
		RawAmount:    amount,
		CappedAmount: amount,
		SourceRef:    sourceRef,
		AwardedAt:    now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("append %s entry: %w", action, err)
	}
	return total, true, nil
}

// evaluateBadges grants every unheld badge whose predicate the user's stats
// now satisfy. Safe to call repeatedly: held badges are skipped and a lost
// grant race is a silent no-op. Returns the grants and the cumulative total
// after any secondary XP rewards.
func (e *Engine) evaluateBadges(ctx context.Context, userID string, streakDays int, now time.Time) ([]BadgeGrant, int, error) {
	if e.badges == nil {
		return nil, 0, nil
	}
	heldIDs, err := e.store.ListBadgeIDsByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list held badges: %w", err)
	}
	held := make(map[string]bool, len(heldIDs))
	for _, badgeID := range heldIDs {
		held[badgeID] = true
	}

	var stats *UserStats
	var grants []BadgeGrant
	total := 0
	for _, def := range e.badges.Definitions() {
		if held[def.ID] {
			continue
		}
		if stats == nil {
			loaded, err := e.userStats(ctx, userID, streakDays)
			if err != nil {
				return grants, total, err
			}
			stats = &loaded
		}
		if !def.Predicate(*stats) {
			continue
		}
		err := e.store.GrantBadge(ctx, storage.BadgeGrantRecord{
			UserID:    userID,
			BadgeID:   def.ID,
			GrantedAt: now,
		})
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// Lost a concurrent grant race; the badge is held.
				continue
			}
			return grants, total, fmt.Errorf("grant badge %s: %w", def.ID, err)
		}
		grants = append(grants, BadgeGrant{BadgeID: def.ID, Name: def.Name, XPReward: def.XPReward})
		if rewardTotal, granted, err := e.appendReward(ctx, userID, ActionBadgeReward, def.XPReward, "badge:"+userID+":"+def.ID, now); err != nil {
			return grants, total, err
		} else if granted {
			total = rewardTotal
		}
		e.notify(ctx, Event{
			RecipientUserID: userID,
			Type:            EventBadgeGranted,
			DedupeKey:       "badge:" + userID + ":" + def.ID,
			Payload: map[string]string{
				"badge_id":   def.ID,
				"badge_name": def.Name,
			},
		})
	}
	if total == 0 && len(grants) > 0 {
		profile, err := e.store.GetProfile(ctx, userID)
		if err != nil {
			return grants, total, fmt.Errorf("reload profile: %w", err)
		}
		total = profile.CumulativePoints
	}
	return grants, total, nil
}

// userStats assembles the badge-predicate snapshot from the ledger and the
// profile streak.
func (e *Engine) userStats(ctx context.Context, userID string, streakDays int) (UserStats, error) {
	posts, err := e.store.CountEntriesByAction(ctx, userID, string(ActionPostCreation))
	if err != nil {
		return UserStats{}, fmt.Errorf("count posts: %w", err)
	}
	comments, err := e.store.CountEntriesByAction(ctx, userID, string(ActionCommentCreation))
	if err != nil {
		return UserStats{}, fmt.Errorf("count comments: %w", err)
	}
	followers, err := e.store.CountEntriesBySourceRef(ctx, string(ActionFollow), "user:"+userID)
	if err != nil {
		return UserStats{}, fmt.Errorf("count followers: %w", err)
	}
	likes, err := e.store.CountEntriesByAction(ctx, userID, string(ActionLikeReceived))
	if err != nil {
		return UserStats{}, fmt.Errorf("count likes: %w", err)
	}
	avatars, err := e.store.CountEntriesByAction(ctx, userID, string(ActionAvatarCustomized))
	if err != nil {
		return UserStats{}, fmt.Errorf("count avatar actions: %w", err)
	}
	return UserStats{
		Posts:         posts,
		Comments:      comments,
		Followers:     followers,
		LikesReceived: likes,
		StreakDays:    streakDays,
		HasAvatar:     avatars > 0,
	}, nil
}

// metricValue returns the user's current value for one step metric.
func (e *Engine) metricValue(ctx context.Context, userID string, metric MetricKind) (int, error) {
	switch metric {
	case MetricPosts:
		return e.store.CountEntriesByAction(ctx, userID, string(ActionPostCreation))
	case MetricComments:
		return e.store.CountEntriesByAction(ctx, userID, string(ActionCommentCreation))
	case MetricFollowers:
		return e.store.CountEntriesBySourceRef(ctx, string(ActionFollow), "user:"+userID)
	case MetricLikesReceived:
		return e.store.CountEntriesByAction(ctx, userID, string(ActionLikeReceived))
	case MetricStreakDays:
		profile, err := e.store.GetProfile(ctx, userID)
		if err != nil {
			return 0, err
		}
		return profile.StreakDays, nil
	}
	return 0, fmt.Errorf("unknown metric %q", metric)
}

// notify hands one event to the notifier. Delivery failures are logged and
// never propagate: a failed dispatch must not undo or block the transition
// that produced it.
func (e *Engine) notify(ctx context.Context, event Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logf("notify %s for %s: %v", event.Type, event.RecipientUserID, err)
	}
}

func (e *Engine) nowUTC() time.Time {
	return e.clock().UTC()
}

// dayBounds returns the UTC calendar-day window containing now.
func dayBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
