package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prorata/internal/core"
	"prorata/internal/services"

	_ "modernc.org/sqlite"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need, so the
// same query methods serve both connection-bound and tx-bound repos.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository implements services.Store on a SQLite database.
type SQLiteRepository struct {
	db *sql.DB // nil on tx-bound copies
	q  dbtx
}

var _ services.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, q: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn against a transaction-bound copy of the repository.
// Nested calls reuse the surrounding transaction.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx services.Store) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&SQLiteRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// Users

func (r *SQLiteRepository) InsertUser(ctx context.Context, u *core.User) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO user (email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.DisplayName, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "user.email") {
			return 0, core.ErrEmailTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM user WHERE email = ?`, email))
}

func (r *SQLiteRepository) FindUserByID(ctx context.Context, id int64) (*core.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM user WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Couples

func (r *SQLiteRepository) FindCoupleByUser(ctx context.Context, userID int64) (*core.Couple, error) {
	var c core.Couple
	err := r.q.QueryRowContext(ctx,
		`SELECT c.id, c.split_mode, c.created_at
		 FROM couple c
		 JOIN couple_member m ON m.couple_id = c.id
		 WHERE m.user_id = ?`, userID).
		Scan(&c.ID, &c.Mode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find couple by user: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) InsertCouple(ctx context.Context, c *core.Couple) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO couple (split_mode, created_at) VALUES (?, ?)`, c.Mode, c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert couple: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert couple id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateCoupleMode(ctx context.Context, coupleID int64, mode core.SplitMode) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE couple SET split_mode = ? WHERE id = ?`, mode, coupleID); err != nil {
		return fmt.Errorf("update couple mode: %w", err)
	}
	return nil
}

// Members

func (r *SQLiteRepository) OrderedMembers(ctx context.Context, coupleID int64) (core.MemberPair, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT m.user_id, u.display_name, u.email, m.income_cents, m.percentage, m.joined_at
		 FROM couple_member m
		 JOIN user u ON u.id = m.user_id
		 WHERE m.couple_id = ?
		 ORDER BY m.joined_at, m.id
		 LIMIT 2`, coupleID)
	if err != nil {
		return core.MemberPair{}, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var pair core.MemberPair
	for rows.Next() {
		var (
			m       core.Member
			income  sql.NullInt64
			percent sql.NullInt64
		)
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Email, &income, &percent, &m.JoinedAt); err != nil {
			return core.MemberPair{}, fmt.Errorf("scan member: %w", err)
		}
		if income.Valid {
			m.IncomeCents = &income.Int64
		}
		if percent.Valid {
			m.Percentage = &percent.Int64
		}
		if pair.A == nil {
			pair.A = &m
		} else {
			pair.B = &m
		}
	}
	if err := rows.Err(); err != nil {
		return core.MemberPair{}, fmt.Errorf("iterate members: %w", err)
	}
	return pair, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, coupleID, userID int64) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO couple_member (couple_id, user_id, joined_at) VALUES (?, ?, ?)`,
		coupleID, userID, time.Now().UTC())
	if isUniqueViolation(err, "couple_member.user_id") {
		return core.ErrAlreadyInCouple
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateMemberSettings(ctx context.Context, coupleID, userID int64, incomeCents, percentage *int64) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE couple_member SET income_cents = ?, percentage = ? WHERE couple_id = ? AND user_id = ?`,
		nullableInt64(incomeCents), nullableInt64(percentage), coupleID, userID)
	if err != nil {
		return fmt.Errorf("update member settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member settings rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Invites

func (r *SQLiteRepository) InsertInvite(ctx context.Context, inv *core.Invite) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO couple_invite (couple_id, email, token, created_at) VALUES (?, ?, ?, ?)`,
		inv.CoupleID, inv.InvitedEmail, inv.Token, inv.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert invite: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert invite id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) FindValidInviteByToken(ctx context.Context, token string) (*core.Invite, error) {
	return r.scanInvite(r.q.QueryRowContext(ctx,
		`SELECT id, couple_id, email, token, created_at, used_at
		 FROM couple_invite WHERE token = ? AND used_at IS NULL`, token))
}

func (r *SQLiteRepository) FindInviteByID(ctx context.Context, id int64) (*core.Invite, error) {
	return r.scanInvite(r.q.QueryRowContext(ctx,
		`SELECT id, couple_id, email, token, created_at, used_at
		 FROM couple_invite WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanInvite(row *sql.Row) (*core.Invite, error) {
	var (
		inv    core.Invite
		usedAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.CoupleID, &inv.InvitedEmail, &inv.Token, &inv.CreatedAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	return &inv, nil
}

func (r *SQLiteRepository) MarkInviteUsed(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE couple_invite SET used_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	return nil
}

// Expenses

func (r *SQLiteRepository) FindExpensesForMonth(ctx context.Context, coupleID int64, year, month int) ([]core.Expense, error) {
	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month+1, 1)

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, couple_id, paid_by, title, category, amount_cents, currency, spent_at, created_at
		 FROM expense
		 WHERE couple_id = ? AND spent_at >= ? AND spent_at < ?
		 ORDER BY spent_at, id`,
		coupleID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func (r *SQLiteRepository) FindExpenseByID(ctx context.Context, coupleID, id int64) (*core.Expense, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, couple_id, paid_by, title, category, amount_cents, currency, spent_at, created_at
		 FROM expense WHERE couple_id = ? AND id = ?`, coupleID, id)
	if err != nil {
		return nil, fmt.Errorf("query expense: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query expense: %w", err)
		}
		return nil, core.ErrNotFound
	}
	return scanExpense(rows)
}

func scanExpense(rows *sql.Rows) (*core.Expense, error) {
	var (
		e       core.Expense
		spentAt string
	)
	if err := rows.Scan(&e.ID, &e.CoupleID, &e.PaidByUserID, &e.Title, &e.Category,
		&e.AmountCents, &e.Currency, &spentAt, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	d, err := core.ParseDate(spentAt)
	if err != nil {
		return nil, fmt.Errorf("parse expense date %q: %w", spentAt, err)
	}
	e.SpentAt = d
	return &e, nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e *core.Expense) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO expense (couple_id, paid_by, title, category, amount_cents, currency, spent_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CoupleID, e.PaidByUserID, e.Title, e.Category, e.AmountCents, e.Currency,
		e.SpentAt.String(), e.CreatedAt, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert expense id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE expense
		 SET paid_by = ?, title = ?, category = ?, amount_cents = ?, currency = ?, spent_at = ?, updated_at = ?
		 WHERE couple_id = ? AND id = ?`,
		e.PaidByUserID, e.Title, e.Category, e.AmountCents, e.Currency, e.SpentAt.String(),
		time.Now().UTC(), e.CoupleID, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, coupleID, id int64) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM expense WHERE couple_id = ? AND id = ?`, coupleID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Closures

func (r *SQLiteRepository) FindClosure(ctx context.Context, coupleID int64, year, month int) (*core.MonthClosure, error) {
	var c core.MonthClosure
	var snapshot string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, couple_id, year, month, closed_at, snapshot
		 FROM month_closure WHERE couple_id = ? AND year = ? AND month = ?`,
		coupleID, year, month).
		Scan(&c.ID, &c.CoupleID, &c.Year, &c.Month, &c.ClosedAt, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find closure: %w", err)
	}
	c.Snapshot = []byte(snapshot)
	return &c, nil
}

func (r *SQLiteRepository) InsertClosure(ctx context.Context, c *core.MonthClosure) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO month_closure (couple_id, year, month, closed_at, snapshot) VALUES (?, ?, ?, ?, ?)`,
		c.CoupleID, c.Year, c.Month, c.ClosedAt, string(c.Snapshot))
	if err != nil {
		if isUniqueViolation(err, "month_closure.couple_id") {
			return 0, core.ErrClosureExists
		}
		return 0, fmt.Errorf("insert closure: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert closure id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ClosuresByCouple(ctx context.Context, coupleID int64) ([]core.MonthClosure, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, couple_id, year, month, closed_at, snapshot
		 FROM month_closure WHERE couple_id = ?
		 ORDER BY year DESC, month DESC`, coupleID)
	if err != nil {
		return nil, fmt.Errorf("query closures: %w", err)
	}
	defer rows.Close()

	var closures []core.MonthClosure
	for rows.Next() {
		var c core.MonthClosure
		var snapshot string
		if err := rows.Scan(&c.ID, &c.CoupleID, &c.Year, &c.Month, &c.ClosedAt, &snapshot); err != nil {
			return nil, fmt.Errorf("scan closure: %w", err)
		}
		c.Snapshot = []byte(snapshot)
		closures = append(closures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closures: %w", err)
	}
	return closures, nil
}
