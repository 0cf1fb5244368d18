package services

import (
	"context"

	"prorata/internal/core"
)

// Store interfaces consumed by the services. The SQLite repository
// implements all of them; tests use the in-memory store.

type UserStore interface {
	// InsertUser returns core.ErrEmailTaken when the email is already
	// registered.
	InsertUser(ctx context.Context, u *core.User) (int64, error)
	FindUserByEmail(ctx context.Context, email string) (*core.User, error)
	FindUserByID(ctx context.Context, id int64) (*core.User, error)
}

type CoupleStore interface {
	// FindCoupleByUser returns core.ErrNotFound when the user has no
	// couple membership.
	FindCoupleByUser(ctx context.Context, userID int64) (*core.Couple, error)
	InsertCouple(ctx context.Context, c *core.Couple) (int64, error)
	UpdateCoupleMode(ctx context.Context, coupleID int64, mode core.SplitMode) error
}

type MemberStore interface {
	// OrderedMembers returns the couple's members in join order, the
	// ordering that fixes balance slots A and B.
	OrderedMembers(ctx context.Context, coupleID int64) (core.MemberPair, error)
	AddMember(ctx context.Context, coupleID, userID int64) error
	UpdateMemberSettings(ctx context.Context, coupleID, userID int64, incomeCents, percentage *int64) error
}

type InviteStore interface {
	InsertInvite(ctx context.Context, inv *core.Invite) (int64, error)
	// FindValidInviteByToken only returns invites that have not been
	// redeemed yet; core.ErrNotFound otherwise.
	FindValidInviteByToken(ctx context.Context, token string) (*core.Invite, error)
	FindInviteByID(ctx context.Context, id int64) (*core.Invite, error)
	MarkInviteUsed(ctx context.Context, id int64) error
}

type ExpenseStore interface {
	// FindExpensesForMonth returns the couple's expenses whose spentAt
	// falls in the given calendar month. Ordering is irrelevant to the
	// balance calculator.
	FindExpensesForMonth(ctx context.Context, coupleID int64, year, month int) ([]core.Expense, error)
	FindExpenseByID(ctx context.Context, coupleID, id int64) (*core.Expense, error)
	InsertExpense(ctx context.Context, e *core.Expense) (int64, error)
	UpdateExpense(ctx context.Context, e *core.Expense) error
	DeleteExpense(ctx context.Context, coupleID, id int64) error
}

type ClosureStore interface {
	// FindClosure returns core.ErrNotFound when the month is open.
	FindClosure(ctx context.Context, coupleID int64, year, month int) (*core.MonthClosure, error)
	// InsertClosure returns core.ErrClosureExists on the
	// (couple, year, month) uniqueness violation.
	InsertClosure(ctx context.Context, c *core.MonthClosure) (int64, error)
	ClosuresByCouple(ctx context.Context, coupleID int64) ([]core.MonthClosure, error)
}

// Store bundles all stores plus transaction scoping. WithTx runs fn
// against a transaction-bound store; guard checks and the writes they
// protect always share one transaction.
type Store interface {
	UserStore
	CoupleStore
	MemberStore
	InviteStore
	ExpenseStore
	ClosureStore

	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// EventPublisher publishes domain events to the message broker.
// Publishing is best-effort: callers log failures and never fail the
// request over them. A nil publisher disables eventing.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, action string, coupleID, expenseID int64, year, month int) error
	PublishMonthClosed(ctx context.Context, coupleID int64, year, month int) error
	PublishInviteCreated(ctx context.Context, inviteID int64) error
}
