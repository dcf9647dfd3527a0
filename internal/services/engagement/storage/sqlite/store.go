// Package sqlite provides SQLite-backed persistence for engagement state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberforum/engagement/internal/platform/storage/sqlitemigrate"
	"github.com/emberforum/engagement/internal/services/engagement/storage"
	"github.com/emberforum/engagement/internal/services/engagement/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const dayKeyLayout = "2006-01-02"

// Store provides SQLite-backed persistence for engagement state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an engagement SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// AppendEntry atomically inserts one ledger row and increments the user's
// cumulative points, returning the new total. A duplicate source reference
// returns storage.ErrConflict with no state change.
func (s *Store) AppendEntry(ctx context.Context, entry storage.LedgerEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return 0, fmt.Errorf("ledger entry id is required")
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(entry.ActionType) == "" {
		return 0, fmt.Errorf("action type is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ledger append: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback ledger append: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO xp_ledger (id, user_id, action_type, raw_amount, bonus_amount, capped_amount, source_ref, awarded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, entry.ID, entry.UserID, entry.ActionType, entry.RawAmount, entry.BonusAmount, entry.CappedAmount, strings.TrimSpace(entry.SourceRef), toMillis(entry.AwardedAt)); err != nil {
		if isUniqueConstraintError(err) {
			return 0, rollbackWith(storage.ErrConflict)
		}
		return 0, rollbackWith(fmt.Errorf("insert ledger entry: %w", err))
	}

	result, err := tx.ExecContext(ctx, `
UPDATE profiles
SET cumulative_points = cumulative_points + ?, updated_at = ?
WHERE user_id = ?
`, entry.CappedAmount, toMillis(entry.AwardedAt), entry.UserID)
	if err != nil {
		return 0, rollbackWith(fmt.Errorf("increment cumulative points: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, rollbackWith(fmt.Errorf("increment rows affected: %w", err))
	}
	if affected == 0 {
		return 0, rollbackWith(fmt.Errorf("profile %s does not exist: %w", entry.UserID, storage.ErrNotFound))
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT cumulative_points FROM profiles WHERE user_id = ?`, entry.UserID).Scan(&total); err != nil {
		return 0, rollbackWith(fmt.Errorf("read cumulative points: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger append: %w", err)
	}
	return total, nil
}

// SumCappedSameDay sums capped award amounts for one user/action pair inside
// a day window.
func (s *Store) SumCappedSameDay(ctx context.Context, userID string, actionType string, dayStart, dayEnd time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var sum int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(capped_amount), 0)
FROM xp_ledger
WHERE user_id = ? AND action_type = ? AND awarded_at >= ? AND awarded_at < ?
`, userID, actionType, toMillis(dayStart), toMillis(dayEnd)).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum same-day capped amounts: %w", err)
	}
	return sum, nil
}

// CountEntriesByAction counts ledger entries for one user/action pair.
func (s *Store) CountEntriesByAction(ctx context.Context, userID string, actionType string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM xp_ledger WHERE user_id = ? AND action_type = ?
`, userID, actionType).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries by action: %w", err)
	}
	return count, nil
}

// CountEntriesBySourceRef counts ledger entries for one action/source pair
// across all users.
func (s *Store) CountEntriesBySourceRef(ctx context.Context, actionType string, sourceRef string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM xp_ledger WHERE action_type = ? AND source_ref = ?
`, actionType, sourceRef).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries by source ref: %w", err)
	}
	return count, nil
}

// AggregateWindowTotals sums capped amounts per user over a ledger window,
// ordered by total descending with account-creation tie-break.
func (s *Store) AggregateWindowTotals(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]storage.WindowTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT l.user_id, SUM(l.capped_amount) AS window_points
FROM xp_ledger l
JOIN profiles p ON p.user_id = l.user_id
WHERE l.awarded_at >= ? AND l.awarded_at < ?
GROUP BY l.user_id
ORDER BY window_points DESC, p.created_at ASC, l.user_id ASC
LIMIT ?
`, toMillis(windowStart), toMillis(windowEnd), limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate window totals: %w", err)
	}
	defer rows.Close()

	var totals []storage.WindowTotal
	for rows.Next() {
		var total storage.WindowTotal
		if err := rows.Scan(&total.UserID, &total.Points); err != nil {
			return nil, fmt.Errorf("scan window total: %w", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window totals: %w", err)
	}
	return totals, nil
}

// ListEntries lists ledger entries newest-first with cursor pagination and
// an optional translated filter condition.
func (s *Store) ListEntries(ctx context.Context, filter storage.LedgerFilter, pageSize int, pageToken string) (storage.LedgerPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.LedgerPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LedgerPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.LedgerPage{}, fmt.Errorf("page size must be greater than zero")
	}

	where := "1=1"
	params := []any{}
	if strings.TrimSpace(filter.Clause) != "" {
		where = filter.Clause
		params = append(params, filter.Params...)
	}

	pageToken = strings.TrimSpace(pageToken)
	if pageToken != "" {
		var tokenAwardedAt int64
		err := s.sqlDB.QueryRowContext(ctx, `SELECT awarded_at FROM xp_ledger WHERE id = ?`, pageToken).Scan(&tokenAwardedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.LedgerPage{}, nil
			}
			return storage.LedgerPage{}, fmt.Errorf("resolve page token: %w", err)
		}
		where += " AND (awarded_at < ? OR (awarded_at = ? AND id < ?))"
		params = append(params, tokenAwardedAt, tokenAwardedAt, pageToken)
	}

	limit := pageSize + 1
	params = append(params, limit)
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, action_type, raw_amount, bonus_amount, capped_amount, source_ref, awarded_at
FROM xp_ledger
WHERE `+where+`
ORDER BY awarded_at DESC, id DESC
LIMIT ?
`, params...)
	if err != nil {
		return storage.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.LedgerEntry
	for rows.Next() {
		var entry storage.LedgerEntry
		var awardedAt int64
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ActionType, &entry.RawAmount, &entry.BonusAmount, &entry.CappedAmount, &entry.SourceRef, &awardedAt); err != nil {
			return storage.LedgerPage{}, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.AwardedAt = fromMillis(awardedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.LedgerPage{}, fmt.Errorf("iterate ledger entries: %w", err)
	}

	page := storage.LedgerPage{}
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		page.NextPageToken = entries[len(entries)-1].ID
	}
	page.Entries = entries
	return page, nil
}

// EnsureProfile creates an empty profile row when none exists.
func (s *Store) EnsureProfile(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO profiles (user_id, cumulative_points, streak_days, last_active_on, created_at, updated_at)
VALUES (?, 0, 0, '', ?, ?)
`, userID, toMillis(now), toMillis(now)); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// GetProfile loads one user profile row.
func (s *Store) GetProfile(ctx context.Context, userID string) (storage.Profile, error) {
	if err := ctx.Err(); err != nil {
		return storage.Profile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Profile{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, cumulative_points, streak_days, last_active_on, created_at, updated_at
FROM profiles
WHERE user_id = ?
`, strings.TrimSpace(userID))
	profile, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// TouchActivity advances the consecutive-day streak for one UTC day key. The
// update is conditional on the previously observed last-active day, so a
// lost race returns storage.ErrConflict for the caller to retry.
func (s *Store) TouchActivity(ctx context.Context, userID string, day string, now time.Time) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, false, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, false, fmt.Errorf("user id is required")
	}
	dayValue, err := time.Parse(dayKeyLayout, day)
	if err != nil {
		return 0, false, fmt.Errorf("invalid day key %q: %w", day, err)
	}

	var streakDays int
	var lastActiveOn string
	err = s.sqlDB.QueryRowContext(ctx, `
SELECT streak_days, last_active_on FROM profiles WHERE user_id = ?
`, userID).Scan(&streakDays, &lastActiveOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, storage.ErrNotFound
		}
		return 0, false, fmt.Errorf("read streak state: %w", err)
	}
	if lastActiveOn == day {
		return streakDays, false, nil
	}

	previousDay := dayValue.AddDate(0, 0, -1).Format(dayKeyLayout)
	newStreak := 1
	if lastActiveOn == previousDay {
		newStreak = streakDays + 1
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE profiles
SET streak_days = ?, last_active_on = ?, updated_at = ?
WHERE user_id = ? AND last_active_on = ?
`, newStreak, day, toMillis(now), userID, lastActiveOn)
	if err != nil {
		return 0, false, fmt.Errorf("advance streak: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("advance streak rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, storage.ErrConflict
	}
	return newStreak, true, nil
}

// ListTopProfiles lists profiles by points under the leaderboard total order.
func (s *Store) ListTopProfiles(ctx context.Context, limit int) ([]storage.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, cumulative_points, streak_days, last_active_on, created_at, updated_at
FROM profiles
ORDER BY cumulative_points DESC, created_at ASC, user_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list top profiles: %w", err)
	}
	defer rows.Close()
	return collectProfiles(rows)
}

// CountProfilesWithMorePoints counts users strictly ahead of a points value.
func (s *Store) CountProfilesWithMorePoints(ctx context.Context, points int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM profiles WHERE cumulative_points > ?
`, points).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles ahead: %w", err)
	}
	return count, nil
}

// ListProfilesInPointsRange lists profiles whose points fall inside an
// inclusive range, for overtake detection.
func (s *Store) ListProfilesInPointsRange(ctx context.Context, minPoints, maxPoints int) ([]storage.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, cumulative_points, streak_days, last_active_on, created_at, updated_at
FROM profiles
WHERE cumulative_points >= ? AND cumulative_points <= ?
ORDER BY cumulative_points DESC, created_at ASC, user_id ASC
`, minPoints, maxPoints)
	if err != nil {
		return nil, fmt.Errorf("list profiles in range: %w", err)
	}
	defer rows.Close()
	return collectProfiles(rows)
}

// ListBadgeIDsByUser lists held badge ids for one user.
func (s *Store) ListBadgeIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT badge_id FROM badge_grants WHERE user_id = ? ORDER BY granted_at ASC, badge_id ASC
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badgeIDs []string
	for rows.Next() {
		var badgeID string
		if err := rows.Scan(&badgeID); err != nil {
			return nil, fmt.Errorf("scan badge id: %w", err)
		}
		badgeIDs = append(badgeIDs, badgeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badge ids: %w", err)
	}
	return badgeIDs, nil
}

// GrantBadge inserts one badge membership fact. Re-granting a held badge
// returns storage.ErrConflict.
func (s *Store) GrantBadge(ctx context.Context, record storage.BadgeGrantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.BadgeID) == "" {
		return fmt.Errorf("badge id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO badge_grants (user_id, badge_id, granted_at) VALUES (?, ?, ?)
`, record.UserID, record.BadgeID, toMillis(record.GrantedAt)); err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("grant badge: %w", err)
	}
	return nil
}

// JoinMission creates one active mission progress row.
func (s *Store) JoinMission(ctx context.Context, record storage.MissionProgressRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.MissionID) == "" {
		return fmt.Errorf("mission id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO mission_progress (user_id, mission_id, status, joined_at, updated_at, completed_at, xp_earned)
VALUES (?, ?, ?, ?, ?, NULL, 0)
`, record.UserID, record.MissionID, string(storage.MissionStatusActive), toMillis(record.JoinedAt), toMillis(record.UpdatedAt)); err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("join mission: %w", err)
	}
	return nil
}

// GetProgress loads one mission progress row with its completed steps.
func (s *Store) GetProgress(ctx context.Context, userID string, missionID string) (storage.MissionProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MissionProgressRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MissionProgressRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, mission_id, status, joined_at, updated_at, completed_at, xp_earned
FROM mission_progress
WHERE user_id = ? AND mission_id = ?
`, strings.TrimSpace(userID), strings.TrimSpace(missionID))
	record, err := scanProgress(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MissionProgressRecord{}, storage.ErrNotFound
		}
		return storage.MissionProgressRecord{}, fmt.Errorf("get mission progress: %w", err)
	}
	steps, err := s.listCompletedSteps(ctx, record.UserID, record.MissionID)
	if err != nil {
		return storage.MissionProgressRecord{}, err
	}
	record.StepsCompleted = steps
	return record, nil
}

// ListActiveProgressByUser lists one user's active mission progress rows.
func (s *Store) ListActiveProgressByUser(ctx context.Context, userID string) ([]storage.MissionProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, mission_id, status, joined_at, updated_at, completed_at, xp_earned
FROM mission_progress
WHERE user_id = ? AND status = ?
ORDER BY joined_at ASC, mission_id ASC
`, strings.TrimSpace(userID), string(storage.MissionStatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active missions: %w", err)
	}
	defer rows.Close()

	var records []storage.MissionProgressRecord
	for rows.Next() {
		record, err := scanProgress(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mission progress: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mission progress: %w", err)
	}
	for i := range records {
		steps, err := s.listCompletedSteps(ctx, records[i].UserID, records[i].MissionID)
		if err != nil {
			return nil, err
		}
		records[i].StepsCompleted = steps
	}
	return records, nil
}

// AddCompletedStep records one step completion with set semantics.
func (s *Store) AddCompletedStep(ctx context.Context, userID string, missionID string, stepID string, completedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO mission_progress_steps (user_id, mission_id, step_id, completed_at)
VALUES (?, ?, ?, ?)
`, strings.TrimSpace(userID), strings.TrimSpace(missionID), strings.TrimSpace(stepID), toMillis(completedAt))
	if err != nil {
		return false, fmt.Errorf("add completed step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add completed step rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE mission_progress SET updated_at = ? WHERE user_id = ? AND mission_id = ?
`, toMillis(completedAt), userID, missionID); err != nil {
		return false, fmt.Errorf("touch mission progress: %w", err)
	}
	return true, nil
}

// CompleteMission transitions one progress row ACTIVE -> COMPLETED. The
// update is conditional on the current status, so only one of two racing
// callers observes won=true.
func (s *Store) CompleteMission(ctx context.Context, userID string, missionID string, completedAt time.Time, xpEarned int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE mission_progress
SET status = ?, completed_at = ?, xp_earned = ?, updated_at = ?
WHERE user_id = ? AND mission_id = ? AND status = ?
`, string(storage.MissionStatusCompleted), toMillis(completedAt), xpEarned, toMillis(completedAt),
		strings.TrimSpace(userID), strings.TrimSpace(missionID), string(storage.MissionStatusActive))
	if err != nil {
		return false, fmt.Errorf("complete mission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete mission rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) listCompletedSteps(ctx context.Context, userID string, missionID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT step_id FROM mission_progress_steps
WHERE user_id = ? AND mission_id = ?
ORDER BY completed_at ASC, step_id ASC
`, userID, missionID)
	if err != nil {
		return nil, fmt.Errorf("list completed steps: %w", err)
	}
	defer rows.Close()

	var steps []string
	for rows.Next() {
		var stepID string
		if err := rows.Scan(&stepID); err != nil {
			return nil, fmt.Errorf("scan step id: %w", err)
		}
		steps = append(steps, stepID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step ids: %w", err)
	}
	return steps, nil
}

func collectProfiles(rows *sql.Rows) ([]storage.Profile, error) {
	var profiles []storage.Profile
	for rows.Next() {
		profile, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func scanProfile(scan func(dest ...any) error) (storage.Profile, error) {
	var profile storage.Profile
	var createdAt, updatedAt int64
	if err := scan(
		&profile.UserID,
		&profile.CumulativePoints,
		&profile.StreakDays,
		&profile.LastActiveOn,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Profile{}, err
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

func scanProgress(scan func(dest ...any) error) (storage.MissionProgressRecord, error) {
	var record storage.MissionProgressRecord
	var status string
	var joinedAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := scan(
		&record.UserID,
		&record.MissionID,
		&status,
		&joinedAt,
		&updatedAt,
		&completedAt,
		&record.XPEarned,
	); err != nil {
		return storage.MissionProgressRecord{}, err
	}
	record.Status = storage.MissionStatus(status)
	record.JoinedAt = fromMillis(joinedAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if completedAt.Valid {
		value := fromMillis(completedAt.Int64)
		record.CompletedAt = &value
	}
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}
