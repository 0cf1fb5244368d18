package services_test

import (
	"context"
	"errors"
	"testing"

	"prorata/internal/core"
	"prorata/internal/services"
	"prorata/internal/storage/memory"
)

func registerUser(t *testing.T, store *memory.Store, email, name string) int64 {
	t.Helper()
	id, err := store.InsertUser(context.Background(), &core.User{Email: email, DisplayName: name})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func TestCoupleCreateAndJoin(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewCoupleService(store, nil)
	ctx := context.Background()

	ada := registerUser(t, store, "ada@example.com", "Ada")
	ben := registerUser(t, store, "ben@example.com", "Ben")

	couple, err := svc.Create(ctx, ada)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if couple.Mode != core.ModeEqual {
		t.Errorf("new couple mode = %s, want equal", couple.Mode)
	}

	if _, err := svc.Create(ctx, ada); !errors.Is(err, core.ErrAlreadyInCouple) {
		t.Errorf("second create err = %v, want ErrAlreadyInCouple", err)
	}

	invite, err := svc.Invite(ctx, couple, "Ben@Example.com ")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if invite.InvitedEmail != "ben@example.com" {
		t.Errorf("invited email = %q, not normalized", invite.InvitedEmail)
	}
	if len(invite.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(invite.Token))
	}

	joined, err := svc.Join(ctx, ben, invite.Token)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != couple.ID {
		t.Errorf("joined couple %d, want %d", joined.ID, couple.ID)
	}

	pair, err := svc.Members(ctx, couple)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if !pair.Full() {
		t.Fatal("couple not full after join")
	}
	// Join order is load-bearing: creator is member A.
	if pair.A.UserID != ada || pair.B.UserID != ben {
		t.Errorf("member order = (%d, %d), want (%d, %d)", pair.A.UserID, pair.B.UserID, ada, ben)
	}

	// The token is single-use.
	carol := registerUser(t, store, "carol@example.com", "Carol")
	if _, err := svc.Join(ctx, carol, invite.Token); !errors.Is(err, core.ErrInvalidInvite) {
		t.Errorf("reused token err = %v, want ErrInvalidInvite", err)
	}
}

func TestInviteRejectedWhenCoupleFull(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewCoupleService(store, nil)
	ctx := context.Background()

	ada := registerUser(t, store, "ada@example.com", "Ada")
	ben := registerUser(t, store, "ben@example.com", "Ben")

	couple, err := svc.Create(ctx, ada)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	invite, err := svc.Invite(ctx, couple, "ben@example.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := svc.Join(ctx, ben, invite.Token); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := svc.Invite(ctx, couple, "third@example.com"); !errors.Is(err, core.ErrCoupleFull) {
		t.Errorf("invite on full couple err = %v, want ErrCoupleFull", err)
	}
}

func TestJoinUnknownToken(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewCoupleService(store, nil)

	ben := registerUser(t, store, "ben@example.com", "Ben")
	if _, err := svc.Join(context.Background(), ben, "nope"); !errors.Is(err, core.ErrInvalidInvite) {
		t.Errorf("err = %v, want ErrInvalidInvite", err)
	}
}

func settingsFixture(t *testing.T) (*services.CoupleService, *fixture) {
	t.Helper()
	f := newCouple(t, core.ModeEqual)
	return services.NewCoupleService(f.store, nil), f
}

func TestUpdateSettingsIncomeMode(t *testing.T) {
	svc, f := settingsFixture(t)
	ctx := context.Background()

	err := svc.UpdateSettings(ctx, f.couple, core.ModeIncome, []services.MemberSetting{
		{UserID: f.userA, IncomeCents: i64(240000)},
		{UserID: f.userB, IncomeCents: i64(160000)},
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}

	pair, _ := f.store.OrderedMembers(ctx, f.couple.ID)
	if pair.A.IncomeCents == nil || *pair.A.IncomeCents != 240000 {
		t.Errorf("member A income = %v", pair.A.IncomeCents)
	}
	if pair.A.Percentage != nil {
		t.Errorf("income mode must clear percentage, got %v", pair.A.Percentage)
	}
	if f.couple.Mode != core.ModeIncome {
		t.Errorf("couple mode = %s", f.couple.Mode)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	tests := []struct {
		name     string
		mode     core.SplitMode
		settings []services.MemberSetting
		want     error
	}{
		{
			name: "income missing a member",
			mode: core.ModeIncome,
			settings: []services.MemberSetting{
				{UserID: 1, IncomeCents: i64(1000)},
			},
			want: services.ErrSettingsIncomplete,
		},
		{
			name: "income zero",
			mode: core.ModeIncome,
			settings: []services.MemberSetting{
				{UserID: 1, IncomeCents: i64(0)},
				{UserID: 2, IncomeCents: i64(1000)},
			},
			want: services.ErrIncomeRequired,
		},
		{
			name: "percentage missing",
			mode: core.ModePercentage,
			settings: []services.MemberSetting{
				{UserID: 1, Percentage: i64(40)},
				{UserID: 2},
			},
			want: services.ErrPercentageRequired,
		},
		{
			// Sums to 100 but a negative share is not a valid split.
			name: "percentage negative",
			mode: core.ModePercentage,
			settings: []services.MemberSetting{
				{UserID: 1, Percentage: i64(-50)},
				{UserID: 2, Percentage: i64(150)},
			},
			want: services.ErrPercentageRange,
		},
		{
			name: "percentage above 100",
			mode: core.ModePercentage,
			settings: []services.MemberSetting{
				{UserID: 1, Percentage: i64(101)},
				{UserID: 2, Percentage: i64(-1)},
			},
			want: services.ErrPercentageRange,
		},
		{
			name: "percentages sum to 90",
			mode: core.ModePercentage,
			settings: []services.MemberSetting{
				{UserID: 1, Percentage: i64(40)},
				{UserID: 2, Percentage: i64(50)},
			},
			want: services.ErrPercentageSum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := settingsFixture(t)
			// Fixture user ids are assigned sequentially from 1.
			err := svc.UpdateSettings(context.Background(), f.couple, tt.mode, tt.settings)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateSettingsEqualClearsFigures(t *testing.T) {
	svc, f := settingsFixture(t)
	ctx := context.Background()

	if err := svc.UpdateSettings(ctx, f.couple, core.ModeIncome, []services.MemberSetting{
		{UserID: f.userA, IncomeCents: i64(240000)},
		{UserID: f.userB, IncomeCents: i64(160000)},
	}); err != nil {
		t.Fatalf("set income: %v", err)
	}

	if err := svc.UpdateSettings(ctx, f.couple, core.ModeEqual, nil); err != nil {
		t.Fatalf("back to equal: %v", err)
	}

	pair, _ := f.store.OrderedMembers(ctx, f.couple.ID)
	if pair.A.IncomeCents != nil || pair.A.Percentage != nil || pair.B.IncomeCents != nil || pair.B.Percentage != nil {
		t.Error("equal mode must clear income and percentage for both members")
	}
}
