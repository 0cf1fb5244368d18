package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"prorata/internal/cache"
	"prorata/internal/core"
)

const fallbackCurrency = "EUR"

// BalanceService computes the monthly balance breakdown. Open months
// are aggregated live from the expense set; closed months are served
// verbatim from the stored snapshot and never recomputed.
type BalanceService struct {
	store     Store
	snapshots *cache.LRUCache[core.BalanceBreakdown]
}

func NewBalanceService(store Store, snapshots *cache.LRUCache[core.BalanceBreakdown]) *BalanceService {
	return &BalanceService{
		store:     store,
		snapshots: snapshots,
	}
}

// CalculateBalance returns the full breakdown for (couple, year, month).
// An empty expense set yields an all-zero breakdown, not an error.
func (s *BalanceService) CalculateBalance(ctx context.Context, couple *core.Couple, year, month int) (core.BalanceBreakdown, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.BalanceBreakdown{}, err
	}

	key := snapshotCacheKey(couple.ID, year, month)
	if s.snapshots != nil {
		if b, ok := s.snapshots.Get(key); ok {
			return b, nil
		}
	}

	closure, err := s.store.FindClosure(ctx, couple.ID, year, month)
	switch {
	case err == nil:
		b, err := core.DecodeSnapshot(closure.Snapshot)
		if err != nil {
			return core.BalanceBreakdown{}, fmt.Errorf("decode closure snapshot: %w", err)
		}
		b.IsClosed = true
		if s.snapshots != nil {
			s.snapshots.Set(key, b)
		}
		return b, nil
	case !errors.Is(err, core.ErrNotFound):
		return core.BalanceBreakdown{}, fmt.Errorf("find closure: %w", err)
	}

	return s.computeLive(ctx, couple, year, month)
}

func (s *BalanceService) computeLive(ctx context.Context, couple *core.Couple, year, month int) (core.BalanceBreakdown, error) {
	expenses, err := s.store.FindExpensesForMonth(ctx, couple.ID, year, month)
	if err != nil {
		return core.BalanceBreakdown{}, fmt.Errorf("find expenses: %w", err)
	}

	var total int64
	for _, e := range expenses {
		total += e.AmountCents
	}

	// Currency is a label, not reconciled across mixed-currency sets.
	currency := fallbackCurrency
	if len(expenses) > 0 {
		currency = expenses[0].Currency
	}

	pair, err := s.store.OrderedMembers(ctx, couple.ID)
	if err != nil {
		return core.BalanceBreakdown{}, fmt.Errorf("ordered members: %w", err)
	}

	b := core.BalanceBreakdown{
		Year:       year,
		Month:      month,
		TotalCents: total,
		Currency:   currency,
		Mode:       couple.Mode,
		IsClosed:   false,
	}

	if pair.Count() < 2 {
		if pair.A != nil {
			b.Members = []core.MemberBalance{{
				UserID:      pair.A.UserID,
				DisplayName: pair.A.DisplayName,
				Weight:      1.0,
				TargetCents: total,
				PaidCents:   paidBy(expenses, pair.A.UserID),
				DeltaCents:  0,
			}}
		}
		return b, nil
	}

	weightA, weightB := ResolveWeights(couple.Mode, pair.A, pair.B)

	// Round half away from zero on the exact product, then derive B's
	// target as the remainder so the two always sum to the total.
	targetA := roundShare(total, weightA)
	targetB := total - targetA

	paidA := paidBy(expenses, pair.A.UserID)
	paidB := total - paidA

	deltaA := paidA - targetA
	deltaB := paidB - targetB

	b.Members = []core.MemberBalance{
		{
			UserID:      pair.A.UserID,
			DisplayName: pair.A.DisplayName,
			Weight:      weightA,
			TargetCents: targetA,
			PaidCents:   paidA,
			DeltaCents:  deltaA,
		},
		{
			UserID:      pair.B.UserID,
			DisplayName: pair.B.DisplayName,
			Weight:      weightB,
			TargetCents: targetB,
			PaidCents:   paidB,
			DeltaCents:  deltaB,
		},
	}

	switch {
	case deltaA > 0:
		b.Settlement = &core.Settlement{FromUserID: pair.B.UserID, ToUserID: pair.A.UserID, AmountCents: deltaA}
	case deltaA < 0:
		b.Settlement = &core.Settlement{FromUserID: pair.A.UserID, ToUserID: pair.B.UserID, AmountCents: -deltaA}
	}

	slog.DebugContext(ctx, "Balance computed",
		"couple_id", couple.ID,
		"year", year,
		"month", month,
		"total_cents", total,
		"mode", couple.Mode)

	return b, nil
}

// roundShare computes round-half-away-from-zero(total * weight) on the
// exact product, not banker's rounding.
func roundShare(totalCents int64, weight float64) int64 {
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromFloat(weight)).
		Round(0).
		IntPart()
}

func paidBy(expenses []core.Expense, userID int64) int64 {
	var sum int64
	for _, e := range expenses {
		if e.PaidByUserID == userID {
			sum += e.AmountCents
		}
	}
	return sum
}

func snapshotCacheKey(coupleID int64, year, month int) string {
	return fmt.Sprintf("snapshot:%d:%04d-%02d", coupleID, year, month)
}
