// Package memory provides an in-process implementation of the service
// store interfaces. It backs package tests; production uses the SQLite
// repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"prorata/internal/core"
	"prorata/internal/services"
)

type Store struct {
	mu sync.Mutex

	users       map[int64]*core.User
	usersByMail map[string]int64
	couples     map[int64]*core.Couple
	members     map[int64][]*core.Member
	memberships map[int64]int64
	invites     map[int64]*core.Invite
	expenses    map[int64]*core.Expense
	closures    map[string]*core.MonthClosure

	nextID int64
}

func NewStore() *Store {
	return &Store{
		users:       make(map[int64]*core.User),
		usersByMail: make(map[string]int64),
		couples:     make(map[int64]*core.Couple),
		members:     make(map[int64][]*core.Member),
		memberships: make(map[int64]int64),
		invites:     make(map[int64]*core.Invite),
		expenses:    make(map[int64]*core.Expense),
		closures:    make(map[string]*core.MonthClosure),
	}
}

// WithTx runs fn against the store itself. The in-memory store is not
// transactional; tests rely on the guard failing before any write.
func (s *Store) WithTx(ctx context.Context, fn func(tx services.Store) error) error {
	return fn(s)
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func closureKey(coupleID int64, year, month int) string {
	return fmt.Sprintf("%d:%04d-%02d", coupleID, year, month)
}

// --- users ---

func (s *Store) InsertUser(ctx context.Context, u *core.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByMail[u.Email]; exists {
		return 0, core.ErrEmailTaken
	}

	cp := *u
	cp.ID = s.id()
	s.users[cp.ID] = &cp
	s.usersByMail[cp.Email] = cp.ID
	return cp.ID, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByMail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// --- couples and members ---

func (s *Store) FindCoupleByUser(ctx context.Context, userID int64) (*core.Couple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupleID, ok := s.memberships[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.couples[coupleID]
	return &cp, nil
}

func (s *Store) InsertCouple(ctx context.Context, c *core.Couple) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	cp.ID = s.id()
	s.couples[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) UpdateCoupleMode(ctx context.Context, coupleID int64, mode core.SplitMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.couples[coupleID]
	if !ok {
		return core.ErrNotFound
	}
	c.Mode = mode
	return nil
}

func (s *Store) OrderedMembers(ctx context.Context, coupleID int64) (core.MemberPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.members[coupleID]
	var pair core.MemberPair
	if len(list) > 0 {
		cp := *list[0]
		pair.A = &cp
	}
	if len(list) > 1 {
		cp := *list[1]
		pair.B = &cp
	}
	return pair, nil
}

func (s *Store) AddMember(ctx context.Context, coupleID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	s.members[coupleID] = append(s.members[coupleID], &core.Member{
		UserID:      userID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		JoinedAt:    time.Now().UTC(),
	})
	s.memberships[userID] = coupleID
	return nil
}

func (s *Store) UpdateMemberSettings(ctx context.Context, coupleID, userID int64, incomeCents, percentage *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.members[coupleID] {
		if m.UserID == userID {
			m.IncomeCents = incomeCents
			m.Percentage = percentage
			return nil
		}
	}
	return core.ErrNotFound
}

// --- invites ---

func (s *Store) InsertInvite(ctx context.Context, inv *core.Invite) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	cp.ID = s.id()
	s.invites[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) FindValidInviteByToken(ctx context.Context, token string) (*core.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invites {
		if inv.Token == token && !inv.Used() {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindInviteByID(ctx context.Context, id int64) (*core.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *Store) MarkInviteUsed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return core.ErrNotFound
	}
	now := time.Now().UTC()
	inv.UsedAt = &now
	return nil
}

// --- expenses ---

func (s *Store) FindExpensesForMonth(ctx context.Context, coupleID int64, year, month int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Expense
	for _, e := range s.expenses {
		if e.CoupleID == coupleID && e.SpentAt.Year() == year && e.SpentAt.Month() == month {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindExpenseByID(ctx context.Context, coupleID, id int64) (*core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.CoupleID != coupleID {
		return nil, core.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) InsertExpense(ctx context.Context, e *core.Expense) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.ID = s.id()
	s.expenses[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.expenses[e.ID]
	if !ok || old.CoupleID != e.CoupleID {
		return core.ErrNotFound
	}
	cp := *e
	s.expenses[e.ID] = &cp
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, coupleID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.CoupleID != coupleID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// --- closures ---

func (s *Store) FindClosure(ctx context.Context, coupleID int64, year, month int) (*core.MonthClosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.closures[closureKey(coupleID, year, month)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) InsertClosure(ctx context.Context, c *core.MonthClosure) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := closureKey(c.CoupleID, c.Year, c.Month)
	if _, exists := s.closures[key]; exists {
		return 0, core.ErrClosureExists
	}

	cp := *c
	cp.ID = s.id()
	s.closures[key] = &cp
	return cp.ID, nil
}

func (s *Store) ClosuresByCouple(ctx context.Context, coupleID int64) ([]core.MonthClosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.MonthClosure
	for _, c := range s.closures {
		if c.CoupleID == coupleID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}
