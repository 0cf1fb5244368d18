package services

import (
	"context"
	"errors"
	"fmt"

	"prorata/internal/core"
)

// ClosedMonthGuard answers "is this month closed?" and rejects
// mutations against closed months. A closure row's existence is the
// sole source of truth. Every expense create/update/delete consults the
// guard before writing, over the same transaction as the write.
type ClosedMonthGuard struct {
	closures ClosureStore
}

func NewClosedMonthGuard(closures ClosureStore) *ClosedMonthGuard {
	return &ClosedMonthGuard{closures: closures}
}

// IsClosed reports whether a closure exists for (couple, year, month).
func (g *ClosedMonthGuard) IsClosed(ctx context.Context, coupleID int64, year, month int) (bool, error) {
	_, err := g.closures.FindClosure(ctx, coupleID, year, month)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find closure: %w", err)
	}
	return true, nil
}

// AssertNotClosed fails with a MonthClosedError when the month is
// closed and is a no-op otherwise.
func (g *ClosedMonthGuard) AssertNotClosed(ctx context.Context, coupleID int64, year, month int) error {
	closed, err := g.IsClosed(ctx, coupleID, year, month)
	if err != nil {
		return err
	}
	if closed {
		return &core.MonthClosedError{Year: year, Month: month}
	}
	return nil
}
