package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prorata/internal/cache"
	"prorata/internal/core"
)

// MonthClosureService closes months. Closing persists an immutable
// snapshot of the computed balance and is idempotent: repeated calls
// return the original snapshot without recomputing. Expense rows are
// untouched; they become immutable through the guard, not by deletion.
type MonthClosureService struct {
	store     Store
	balance   *BalanceService
	snapshots *cache.LRUCache[core.BalanceBreakdown]
	events    EventPublisher
	now       func() time.Time
}

func NewMonthClosureService(store Store, balance *BalanceService, snapshots *cache.LRUCache[core.BalanceBreakdown], events EventPublisher) *MonthClosureService {
	return &MonthClosureService{
		store:     store,
		balance:   balance,
		snapshots: snapshots,
		events:    events,
		now:       time.Now,
	}
}

// CloseMonth transitions (couple, year, month) from open to closed and
// returns the frozen breakdown. The open-to-closed transition is
// one-way; there is no reopening.
func (s *MonthClosureService) CloseMonth(ctx context.Context, couple *core.Couple, year, month int) (core.BalanceBreakdown, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.BalanceBreakdown{}, err
	}

	existing, err := s.store.FindClosure(ctx, couple.ID, year, month)
	switch {
	case err == nil:
		return s.fromSnapshot(existing)
	case !errors.Is(err, core.ErrNotFound):
		return core.BalanceBreakdown{}, fmt.Errorf("find closure: %w", err)
	}

	live, err := s.balance.CalculateBalance(ctx, couple, year, month)
	if err != nil {
		return core.BalanceBreakdown{}, fmt.Errorf("calculate balance: %w", err)
	}

	snapshot, err := core.EncodeSnapshot(live)
	if err != nil {
		return core.BalanceBreakdown{}, err
	}

	closure := &core.MonthClosure{
		CoupleID: couple.ID,
		Year:     year,
		Month:    month,
		ClosedAt: s.now().UTC(),
		Snapshot: snapshot,
	}

	_, err = s.store.InsertClosure(ctx, closure)
	if errors.Is(err, core.ErrClosureExists) {
		// Lost the race against a concurrent close: the month is closed
		// now, so answer with the winner's snapshot.
		winner, ferr := s.store.FindClosure(ctx, couple.ID, year, month)
		if ferr != nil {
			return core.BalanceBreakdown{}, fmt.Errorf("find winning closure: %w", ferr)
		}
		return s.fromSnapshot(winner)
	}
	if err != nil {
		return core.BalanceBreakdown{}, fmt.Errorf("insert closure: %w", err)
	}

	live.IsClosed = true
	if s.snapshots != nil {
		s.snapshots.Set(snapshotCacheKey(couple.ID, year, month), live)
	}

	slog.InfoContext(ctx, "Month closed",
		"couple_id", couple.ID,
		"year", year,
		"month", month,
		"total_cents", live.TotalCents)

	if s.events != nil {
		if err := s.events.PublishMonthClosed(ctx, couple.ID, year, month); err != nil {
			slog.ErrorContext(ctx, "Failed to publish month closed event",
				"couple_id", couple.ID, "year", year, "month", month, "error", err)
			// Closure is persisted; notification delivery is best-effort.
		}
	}

	return live, nil
}

// History returns the couple's closed months, newest first, with the
// headline figures read from each stored snapshot.
func (s *MonthClosureService) History(ctx context.Context, couple *core.Couple) ([]HistoryItem, error) {
	closures, err := s.store.ClosuresByCouple(ctx, couple.ID)
	if err != nil {
		return nil, fmt.Errorf("closures by couple: %w", err)
	}

	items := make([]HistoryItem, 0, len(closures))
	for _, c := range closures {
		b, err := core.DecodeSnapshot(c.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot for %04d-%02d: %w", c.Year, c.Month, err)
		}
		items = append(items, HistoryItem{
			Year:       c.Year,
			Month:      c.Month,
			ClosedAt:   c.ClosedAt,
			TotalCents: b.TotalCents,
			Settlement: b.Settlement,
		})
	}
	return items, nil
}

// HistoryItem is the condensed closed-month view used by the history
// listing.
type HistoryItem struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	ClosedAt   time.Time        `json:"closedAt"`
	TotalCents int64            `json:"totalCents"`
	Settlement *core.Settlement `json:"settlement"`
}

func (s *MonthClosureService) fromSnapshot(c *core.MonthClosure) (core.BalanceBreakdown, error) {
	b, err := core.DecodeSnapshot(c.Snapshot)
	if err != nil {
		return core.BalanceBreakdown{}, fmt.Errorf("decode closure snapshot: %w", err)
	}
	b.IsClosed = true
	return b, nil
}
