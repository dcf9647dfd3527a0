package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberforum/engagement/internal/services/engagement/storage"
)

// JoinMission creates an active progress record for one catalog mission.
// Joining an already-joined mission is a no-op.
func (e *Engine) JoinMission(ctx context.Context, userID string, missionID string) error {
	if e == nil || e.store == nil {
		return ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}
	missionID = strings.TrimSpace(missionID)
	if _, ok := e.missions.Definition(missionID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMission, missionID)
	}

	now := e.nowUTC()
	if err := e.store.EnsureProfile(ctx, userID, now); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	err := e.store.JoinMission(ctx, storage.MissionProgressRecord{
		UserID:    userID,
		MissionID: missionID,
		Status:    storage.MissionStatusActive,
		JoinedAt:  now,
		UpdatedAt: now,
	})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("join mission: %w", err)
	}
	return nil
}

// RecordMissionTrigger advances every joined, active mission that has an
// unmet step matching the action's metric. When the final step completes,
// the progress transitions to completed exactly once and the mission reward
// is credited exactly once, guarded by the store's conditional update.
func (e *Engine) RecordMissionTrigger(ctx context.Context, userID string, action ActionType) error {
	if e == nil || e.store == nil {
		return ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}
	if !KnownAction(action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	active, err := e.store.ListActiveProgressByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list active missions: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	actionMetric, _ := MetricForAction(action)
	now := e.nowUTC()
	metricValues := make(map[MetricKind]int)

	for _, progress := range active {
		mission, ok := e.missions.Definition(progress.MissionID)
		if !ok {
			// Progress for a mission removed from the catalog; leave it.
			e.logf("mission %s joined by %s is no longer in the catalog", progress.MissionID, userID)
			continue
		}
		completed := make(map[string]bool, len(progress.StepsCompleted))
		for _, stepID := range progress.StepsCompleted {
			completed[stepID] = true
		}

		for _, step := range mission.Steps {
			if completed[step.ID] {
				continue
			}
			// Streak steps have no producing action, so any qualifying
			// trigger re-evaluates them.
			if step.Metric != actionMetric && step.Metric != MetricStreakDays {
				continue
			}
			value, cached := metricValues[step.Metric]
			if !cached {
				value, err = e.metricValue(ctx, userID, step.Metric)
				if err != nil {
					return fmt.Errorf("metric %s for %s: %w", step.Metric, userID, err)
				}
				metricValues[step.Metric] = value
			}
			if value < step.Target {
				continue
			}
			if _, err := e.store.AddCompletedStep(ctx, userID, progress.MissionID, step.ID, now); err != nil {
				return fmt.Errorf("record step %s: %w", step.ID, err)
			}
			completed[step.ID] = true
		}

		if len(completed) == len(mission.Steps) {
			if err := e.completeMission(ctx, userID, mission, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// completeMission runs the guarded ACTIVE -> COMPLETED transition and grants
// the mission rewards to the single winner.
func (e *Engine) completeMission(ctx context.Context, userID string, mission MissionDefinition, now time.Time) error {
	won, err := e.store.CompleteMission(ctx, userID, mission.ID, now, mission.Rewards.XP)
	if err != nil {
		return fmt.Errorf("complete mission %s: %w", mission.ID, err)
	}
	if !won {
		// A concurrent trigger already completed it; nothing to grant.
		return nil
	}

	if _, _, err := e.appendReward(ctx, userID, ActionMissionReward, mission.Rewards.XP, "mission:"+userID+":"+mission.ID, now); err != nil {
		return err
	}
	if mission.Rewards.BadgeID != "" {
		err := e.store.GrantBadge(ctx, storage.BadgeGrantRecord{
			UserID:    userID,
			BadgeID:   mission.Rewards.BadgeID,
			GrantedAt: now,
		})
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("grant mission badge %s: %w", mission.Rewards.BadgeID, err)
		}
	}
	e.notify(ctx, Event{
		RecipientUserID: userID,
		Type:            EventMissionCompleted,
		DedupeKey:       "mission:" + userID + ":" + mission.ID,
		Payload: map[string]string{
			"mission_id":    mission.ID,
			"mission_title": mission.Title,
			"xp":            fmt.Sprintf("%d", mission.Rewards.XP),
		},
	})
	return nil
}

// MissionProgress is one user's view of a joined mission.
type MissionProgress struct {
	MissionID      string
	Title          string
	Status         storage.MissionStatus
	StepsCompleted []string
	TotalSteps     int
	CompletedAt    *time.Time
	XPEarned       int
}

// GetMissionProgress returns one joined mission's progress.
func (e *Engine) GetMissionProgress(ctx context.Context, userID string, missionID string) (MissionProgress, error) {
	if e == nil || e.store == nil {
		return MissionProgress{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return MissionProgress{}, ErrUserIDRequired
	}
	mission, ok := e.missions.Definition(strings.TrimSpace(missionID))
	if !ok {
		return MissionProgress{}, fmt.Errorf("%w: %q", ErrUnknownMission, missionID)
	}
	record, err := e.store.GetProgress(ctx, userID, mission.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return MissionProgress{}, fmt.Errorf("%w: %s", ErrMissionNotJoined, mission.ID)
		}
		return MissionProgress{}, fmt.Errorf("get mission progress: %w", err)
	}
	return MissionProgress{
		MissionID:      record.MissionID,
		Title:          mission.Title,
		Status:         record.Status,
		StepsCompleted: record.StepsCompleted,
		TotalSteps:     len(mission.Steps),
		CompletedAt:    record.CompletedAt,
		XPEarned:       record.XPEarned,
	}, nil
}
