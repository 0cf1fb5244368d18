package services_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"prorata/internal/cache"
	"prorata/internal/core"
	"prorata/internal/services"
	"prorata/internal/storage/memory"
)

func i64(v int64) *int64 { return &v }

type fixture struct {
	store  *memory.Store
	couple *core.Couple
	userA  int64
	userB  int64
}

// newCouple builds a two-member couple in the given mode. Member order
// follows insertion: userA joined first.
func newCouple(t *testing.T, mode core.SplitMode) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	userA, err := store.InsertUser(ctx, &core.User{Email: "ada@example.com", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("insert user A: %v", err)
	}
	userB, err := store.InsertUser(ctx, &core.User{Email: "ben@example.com", DisplayName: "Ben"})
	if err != nil {
		t.Fatalf("insert user B: %v", err)
	}

	coupleID, err := store.InsertCouple(ctx, &core.Couple{Mode: mode, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert couple: %v", err)
	}
	if err := store.AddMember(ctx, coupleID, userA); err != nil {
		t.Fatalf("add member A: %v", err)
	}
	if err := store.AddMember(ctx, coupleID, userB); err != nil {
		t.Fatalf("add member B: %v", err)
	}

	return &fixture{
		store:  store,
		couple: &core.Couple{ID: coupleID, Mode: mode},
		userA:  userA,
		userB:  userB,
	}
}

func (f *fixture) addExpense(t *testing.T, payer int64, amountCents int64, year, month int) {
	t.Helper()
	_, err := f.store.InsertExpense(context.Background(), &core.Expense{
		CoupleID:     f.couple.ID,
		PaidByUserID: payer,
		Title:        "expense",
		Category:     "misc",
		AmountCents:  amountCents,
		Currency:     "EUR",
		SpentAt:      core.NewDate(year, month, 10),
	})
	if err != nil {
		t.Fatalf("insert expense: %v", err)
	}
}

func (f *fixture) setSettings(t *testing.T, income map[int64]int64, pct map[int64]int64) {
	t.Helper()
	ctx := context.Background()
	for userID, v := range income {
		if err := f.store.UpdateMemberSettings(ctx, f.couple.ID, userID, i64(v), nil); err != nil {
			t.Fatalf("set income: %v", err)
		}
	}
	for userID, v := range pct {
		if err := f.store.UpdateMemberSettings(ctx, f.couple.ID, userID, nil, i64(v)); err != nil {
			t.Fatalf("set percentage: %v", err)
		}
	}
}

func balanceService(f *fixture) *services.BalanceService {
	return services.NewBalanceService(f.store, cache.NewLRUCache[core.BalanceBreakdown](16, time.Minute))
}

func TestCalculateBalanceEqualMode(t *testing.T) {
	f := newCouple(t, core.ModeEqual)
	f.addExpense(t, f.userA, 6000, 2026, 3)
	f.addExpense(t, f.userB, 4000, 2026, 3)

	b, err := balanceService(f).CalculateBalance(context.Background(), f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if b.TotalCents != 10000 {
		t.Errorf("total = %d, want 10000", b.TotalCents)
	}
	assertMember(t, b.Members[0], f.userA, 0.5, 5000, 6000, 1000)
	assertMember(t, b.Members[1], f.userB, 0.5, 5000, 4000, -1000)
	assertSettlement(t, b.Settlement, f.userB, f.userA, 1000)
	if b.IsClosed {
		t.Error("open month reported closed")
	}
}

func TestCalculateBalanceIncomeMode(t *testing.T) {
	f := newCouple(t, core.ModeIncome)
	f.setSettings(t, map[int64]int64{f.userA: 240000, f.userB: 160000}, nil)
	f.addExpense(t, f.userA, 10000, 2026, 3)
	f.addExpense(t, f.userB, 11400, 2026, 3)

	b, err := balanceService(f).CalculateBalance(context.Background(), f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if b.TotalCents != 21400 {
		t.Errorf("total = %d, want 21400", b.TotalCents)
	}
	assertMember(t, b.Members[0], f.userA, 0.6, 12840, 10000, -2840)
	assertMember(t, b.Members[1], f.userB, 0.4, 8560, 11400, 2840)
	assertSettlement(t, b.Settlement, f.userA, f.userB, 2840)
}

func TestCalculateBalancePercentageMode(t *testing.T) {
	f := newCouple(t, core.ModePercentage)
	f.setSettings(t, nil, map[int64]int64{f.userA: 33, f.userB: 67})
	f.addExpense(t, f.userA, 5000, 2026, 3)
	f.addExpense(t, f.userB, 5000, 2026, 3)

	b, err := balanceService(f).CalculateBalance(context.Background(), f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	assertMember(t, b.Members[0], f.userA, 0.33, 3300, 5000, 1700)
	assertMember(t, b.Members[1], f.userB, 0.67, 6700, 5000, -1700)
	assertSettlement(t, b.Settlement, f.userB, f.userA, 1700)
}

func TestCalculateBalanceExactlyBalanced(t *testing.T) {
	f := newCouple(t, core.ModeEqual)
	f.addExpense(t, f.userA, 5000, 2026, 3)
	f.addExpense(t, f.userB, 5000, 2026, 3)

	b, err := balanceService(f).CalculateBalance(context.Background(), f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if b.Members[0].DeltaCents != 0 || b.Members[1].DeltaCents != 0 {
		t.Errorf("deltas = %d/%d, want 0/0", b.Members[0].DeltaCents, b.Members[1].DeltaCents)
	}
	if b.Settlement != nil {
		t.Errorf("settlement = %+v, want nil", b.Settlement)
	}
}

func TestCalculateBalanceEmptyMonth(t *testing.T) {
	f := newCouple(t, core.ModeEqual)

	b, err := balanceService(f).CalculateBalance(context.Background(), f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if b.TotalCents != 0 {
		t.Errorf("total = %d, want 0", b.TotalCents)
	}
	if b.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", b.Currency)
	}
	for _, m := range b.Members {
		if m.TargetCents != 0 || m.PaidCents != 0 || m.DeltaCents != 0 {
			t.Errorf("member %d not all-zero: %+v", m.UserID, m)
		}
	}
	if b.Settlement != nil {
		t.Errorf("settlement = %+v, want nil", b.Settlement)
	}
}

func TestCalculateBalanceCurrencyFromExpenses(t *testing.T) {
	f := newCouple(t, core.ModeEqual)
	ctx := context.Background()
	_, err := f.store.InsertExpense(ctx, &core.Expense{
		CoupleID:     f.couple.ID,
		PaidByUserID: f.userA,
		Title:        "hotel",
		Category:     "travel",
		AmountCents:  30000,
		Currency:     "SEK",
		SpentAt:      core.NewDate(2026, 3, 5),
	})
	if err != nil {
		t.Fatalf("insert expense: %v", err)
	}

	b, err := balanceService(f).CalculateBalance(ctx, f.couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if b.Currency != "SEK" {
		t.Errorf("currency = %q, want SEK", b.Currency)
	}
}

func TestCalculateBalanceSoloMember(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	userA, err := store.InsertUser(ctx, &core.User{Email: "solo@example.com", DisplayName: "Solo"})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	coupleID, err := store.InsertCouple(ctx, &core.Couple{Mode: core.ModeEqual})
	if err != nil {
		t.Fatalf("insert couple: %v", err)
	}
	if err := store.AddMember(ctx, coupleID, userA); err != nil {
		t.Fatalf("add member: %v", err)
	}
	couple := &core.Couple{ID: coupleID, Mode: core.ModeEqual}

	if _, err := store.InsertExpense(ctx, &core.Expense{
		CoupleID: coupleID, PaidByUserID: userA, Title: "rent", Category: "home",
		AmountCents: 80000, Currency: "EUR", SpentAt: core.NewDate(2026, 3, 1),
	}); err != nil {
		t.Fatalf("insert expense: %v", err)
	}

	svc := services.NewBalanceService(store, nil)
	b, err := svc.CalculateBalance(ctx, couple, 2026, 3)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(b.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(b.Members))
	}
	assertMember(t, b.Members[0], userA, 1.0, 80000, 80000, 0)
	if b.Settlement != nil {
		t.Errorf("settlement = %+v, want nil", b.Settlement)
	}
}

// Targets always sum exactly to the total and deltas are exact
// negatives, for arbitrary incomes and expense sets.
func TestCalculateBalanceInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		f := newCouple(t, core.ModeIncome)
		f.setSettings(t, map[int64]int64{
			f.userA: rng.Int63n(5_000_000),
			f.userB: rng.Int63n(5_000_000),
		}, nil)

		for n := rng.Intn(8); n > 0; n-- {
			payer := f.userA
			if rng.Intn(2) == 1 {
				payer = f.userB
			}
			f.addExpense(t, payer, 1+rng.Int63n(500_000), 2026, 4)
		}

		b, err := balanceService(f).CalculateBalance(ctx, f.couple, 2026, 4)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}

		mA, mB := b.Members[0], b.Members[1]
		if mA.TargetCents+mB.TargetCents != b.TotalCents {
			t.Fatalf("targets %d+%d != total %d", mA.TargetCents, mB.TargetCents, b.TotalCents)
		}
		if mA.PaidCents+mB.PaidCents != b.TotalCents {
			t.Fatalf("paid %d+%d != total %d", mA.PaidCents, mB.PaidCents, b.TotalCents)
		}
		if mA.DeltaCents != -mB.DeltaCents {
			t.Fatalf("delta symmetry broken: %d vs %d", mA.DeltaCents, mB.DeltaCents)
		}

		switch {
		case mA.DeltaCents > 0:
			assertSettlement(t, b.Settlement, f.userB, f.userA, mA.DeltaCents)
		case mA.DeltaCents < 0:
			assertSettlement(t, b.Settlement, f.userA, f.userB, -mA.DeltaCents)
		default:
			if b.Settlement != nil {
				t.Fatalf("settlement = %+v, want nil for balanced month", b.Settlement)
			}
		}
	}
}

func assertMember(t *testing.T, m core.MemberBalance, userID int64, weight float64, target, paid, delta int64) {
	t.Helper()
	if m.UserID != userID {
		t.Errorf("userId = %d, want %d", m.UserID, userID)
	}
	if m.Weight != weight {
		t.Errorf("weight = %v, want %v", m.Weight, weight)
	}
	if m.TargetCents != target {
		t.Errorf("target = %d, want %d", m.TargetCents, target)
	}
	if m.PaidCents != paid {
		t.Errorf("paid = %d, want %d", m.PaidCents, paid)
	}
	if m.DeltaCents != delta {
		t.Errorf("delta = %d, want %d", m.DeltaCents, delta)
	}
}

func assertSettlement(t *testing.T, s *core.Settlement, from, to, amount int64) {
	t.Helper()
	if s == nil {
		t.Fatal("settlement missing")
	}
	if s.FromUserID != from || s.ToUserID != to || s.AmountCents != amount {
		t.Errorf("settlement = %+v, want from=%d to=%d amount=%d", s, from, to, amount)
	}
}
