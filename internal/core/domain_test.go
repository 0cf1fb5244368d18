package core

import (
	"testing"
	"time"
)

func TestParseSplitMode(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"equal", true},
		{"income", true},
		{"percentage", true},
		{"", false},
		{"EQUAL", false},
		{"fifty-fifty", false},
	}
	for _, tc := range cases {
		got, err := ParseSplitMode(tc.in)
		if tc.ok {
			if err != nil || string(got) != tc.in {
				t.Fatalf("%q expected mode, got %q (err=%v)", tc.in, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestDateMonthBucket(t *testing.T) {
	d, err := ParseDate("2026-03-31")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if d.Year() != 2026 || d.Month() != 3 {
		t.Errorf("bucket = %d/%d, want 2026/3", d.Year(), d.Month())
	}
	if d.String() != "2026-03-31" {
		t.Errorf("String() = %q", d.String())
	}

	if _, err := ParseDate("31/03/2026"); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestMemberPair(t *testing.T) {
	a := &Member{UserID: 1}
	b := &Member{UserID: 2}

	tests := []struct {
		name  string
		pair  MemberPair
		count int
		full  bool
	}{
		{"empty", MemberPair{}, 0, false},
		{"solo", MemberPair{A: a}, 1, false},
		{"full", MemberPair{A: a, B: b}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pair.Count(); got != tt.count {
				t.Errorf("Count() = %d, want %d", got, tt.count)
			}
			if got := tt.pair.Full(); got != tt.full {
				t.Errorf("Full() = %v, want %v", got, tt.full)
			}
		})
	}

	pair := MemberPair{A: a, B: b}
	if !pair.Has(1) || !pair.Has(2) || pair.Has(3) {
		t.Error("Has() membership check failed")
	}
}

func TestExpenseValidate(t *testing.T) {
	valid := Expense{
		Title:       "Groceries",
		Category:    "food",
		AmountCents: 4250,
		Currency:    "EUR",
		SpentAt:     NewDate(2026, 2, 14),
	}

	tests := []struct {
		name   string
		mutate func(e *Expense)
		want   error
	}{
		{"valid", func(e *Expense) {}, nil},
		{"zero date", func(e *Expense) { e.SpentAt = Date{} }, ErrZeroDate},
		{"empty title", func(e *Expense) { e.Title = "  " }, ErrEmptyTitle},
		{"empty category", func(e *Expense) { e.Category = "" }, ErrEmptyCategory},
		{"zero amount", func(e *Expense) { e.AmountCents = 0 }, ErrInvalidAmount},
		{"negative amount", func(e *Expense) { e.AmountCents = -100 }, ErrInvalidAmount},
		{"bad currency", func(e *Expense) { e.Currency = "EURO" }, ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			if got := e.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInviteUsed(t *testing.T) {
	inv := Invite{Token: "tok"}
	if inv.Used() {
		t.Error("fresh invite reported used")
	}
	now := time.Now()
	inv.UsedAt = &now
	if !inv.Used() {
		t.Error("redeemed invite reported unused")
	}
}

func TestValidateYearMonth(t *testing.T) {
	if err := ValidateYearMonth(2026, 12); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	for _, bad := range [][2]int{{2026, 0}, {2026, 13}, {1200, 5}} {
		if err := ValidateYearMonth(bad[0], bad[1]); err == nil {
			t.Errorf("expected error for %d/%d", bad[0], bad[1])
		}
	}
}
