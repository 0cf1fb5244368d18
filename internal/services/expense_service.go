package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"prorata/internal/core"
)

// Expense event actions published to the broker.
const (
	ExpenseCreated = "created"
	ExpenseUpdated = "updated"
	ExpenseDeleted = "deleted"
)

// ExpenseService handles the expense lifecycle. Every mutation runs the
// closed-month guard inside the same transaction as the write, so a
// closure landing mid-request can never let a half-applied mutation
// through.
type ExpenseService struct {
	store  Store
	events EventPublisher
	now    func() time.Time
}

func NewExpenseService(store Store, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

type CreateExpenseInput struct {
	PaidByUserID int64
	Title        string
	Category     string
	AmountCents  int64
	Currency     string
	SpentAt      core.Date
}

type UpdateExpenseInput struct {
	PaidByUserID *int64
	Title        *string
	Category     *string
	AmountCents  *int64
	Currency     *string
	SpentAt      *core.Date
}

// ListMonth returns the couple's expenses for a calendar month together
// with the month's closed flag.
func (s *ExpenseService) ListMonth(ctx context.Context, couple *core.Couple, year, month int) ([]core.Expense, bool, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, false, err
	}

	expenses, err := s.store.FindExpensesForMonth(ctx, couple.ID, year, month)
	if err != nil {
		return nil, false, fmt.Errorf("find expenses: %w", err)
	}

	closed, err := NewClosedMonthGuard(s.store).IsClosed(ctx, couple.ID, year, month)
	if err != nil {
		return nil, false, err
	}

	return expenses, closed, nil
}

// Create records a new expense. The payer must be a current member and
// the expense's month must still be open.
func (s *ExpenseService) Create(ctx context.Context, couple *core.Couple, in CreateExpenseInput) (*core.Expense, error) {
	expense := &core.Expense{
		CoupleID:     couple.ID,
		PaidByUserID: in.PaidByUserID,
		Title:        in.Title,
		Category:     in.Category,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		SpentAt:      in.SpentAt,
		CreatedAt:    s.now().UTC(),
	}
	if err := expense.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		pair, err := tx.OrderedMembers(ctx, couple.ID)
		if err != nil {
			return fmt.Errorf("ordered members: %w", err)
		}
		if !pair.Has(in.PaidByUserID) {
			return core.ErrPayerNotMember
		}

		guard := NewClosedMonthGuard(tx)
		if err := guard.AssertNotClosed(ctx, couple.ID, expense.SpentAt.Year(), expense.SpentAt.Month()); err != nil {
			return err
		}

		id, err := tx.InsertExpense(ctx, expense)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		expense.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, ExpenseCreated, expense)
	return expense, nil
}

// Update applies a partial update. Both the expense's current month and,
// when the date changes, the target month must be open; a failed check
// leaves the expense entirely unmodified.
func (s *ExpenseService) Update(ctx context.Context, couple *core.Couple, id int64, in UpdateExpenseInput) (*core.Expense, error) {
	var updated *core.Expense

	err := s.store.WithTx(ctx, func(tx Store) error {
		expense, err := tx.FindExpenseByID(ctx, couple.ID, id)
		if err != nil {
			return err
		}

		guard := NewClosedMonthGuard(tx)
		if err := guard.AssertNotClosed(ctx, couple.ID, expense.SpentAt.Year(), expense.SpentAt.Month()); err != nil {
			return err
		}

		next := *expense
		if in.SpentAt != nil {
			if err := guard.AssertNotClosed(ctx, couple.ID, in.SpentAt.Year(), in.SpentAt.Month()); err != nil {
				return err
			}
			next.SpentAt = *in.SpentAt
		}
		if in.Title != nil {
			next.Title = *in.Title
		}
		if in.Category != nil {
			next.Category = *in.Category
		}
		if in.AmountCents != nil {
			next.AmountCents = *in.AmountCents
		}
		if in.Currency != nil {
			next.Currency = *in.Currency
		}
		if in.PaidByUserID != nil {
			pair, err := tx.OrderedMembers(ctx, couple.ID)
			if err != nil {
				return fmt.Errorf("ordered members: %w", err)
			}
			if !pair.Has(*in.PaidByUserID) {
				return core.ErrPayerNotMember
			}
			next.PaidByUserID = *in.PaidByUserID
		}

		if err := next.Validate(); err != nil {
			return err
		}

		if err := tx.UpdateExpense(ctx, &next); err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, ExpenseUpdated, updated)
	return updated, nil
}

// Delete removes an expense from an open month.
func (s *ExpenseService) Delete(ctx context.Context, couple *core.Couple, id int64) error {
	var deleted *core.Expense

	err := s.store.WithTx(ctx, func(tx Store) error {
		expense, err := tx.FindExpenseByID(ctx, couple.ID, id)
		if err != nil {
			return err
		}

		guard := NewClosedMonthGuard(tx)
		if err := guard.AssertNotClosed(ctx, couple.ID, expense.SpentAt.Year(), expense.SpentAt.Month()); err != nil {
			return err
		}

		if err := tx.DeleteExpense(ctx, couple.ID, id); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		deleted = expense
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, ExpenseDeleted, deleted)
	return nil
}

func (s *ExpenseService) publishEvent(ctx context.Context, action string, e *core.Expense) {
	if s.events == nil {
		return
	}
	err := s.events.PublishExpenseEvent(ctx, action, e.CoupleID, e.ID, e.SpentAt.Year(), e.SpentAt.Month())
	if err != nil {
		// Don't fail the request, the expense write already succeeded.
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"action", action,
			"expense_id", e.ID,
			"couple_id", e.CoupleID,
			"error", err)
	}
}
