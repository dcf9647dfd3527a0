package domain

import (
	"context"
	"fmt"

	"github.com/emberforum/engagement/internal/services/engagement/filter"
	"github.com/emberforum/engagement/internal/services/engagement/storage"
	"github.com/emberforum/engagement/internal/storage/cursor"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
)

// ErrInvalidPageToken indicates a malformed or stale ledger page token.
var ErrInvalidPageToken = fmt.Errorf("invalid page token")

// ListLedger returns one page of ledger entries matching an AIP-160 filter
// expression (e.g. `user_id = "u-1" AND action_type = "comment_creation"`),
// newest first. Page tokens are opaque and bound to the filter that produced
// them. Intended for audit and admin browsing.
func (e *Engine) ListLedger(ctx context.Context, filterExpr string, pageSize int, pageToken string) (storage.LedgerPage, error) {
	if e == nil || e.store == nil {
		return storage.LedgerPage{}, ErrStoreNotConfigured
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultLedgerPageSize
	case pageSize > maxLedgerPageSize:
		pageSize = maxLedgerPageSize
	}
	condition, err := filter.ParseLedgerFilter(filterExpr)
	if err != nil {
		return storage.LedgerPage{}, fmt.Errorf("ledger filter: %w", err)
	}

	lastEntryID := ""
	if pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.LedgerPage{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
		}
		if err := cursor.ValidateFilterHash(decoded, filterExpr); err != nil {
			return storage.LedgerPage{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
		}
		lastEntryID = decoded.LastID
	}

	page, err := e.store.ListEntries(ctx, storage.LedgerFilter{
		Clause: condition.Clause,
		Params: condition.Params,
	}, pageSize, lastEntryID)
	if err != nil {
		return storage.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
	}
	if page.NextPageToken != "" {
		encoded, err := cursor.Encode(cursor.NewNextPageCursor(page.NextPageToken, filterExpr))
		if err != nil {
			return storage.LedgerPage{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = encoded
	}
	return page, nil
}
