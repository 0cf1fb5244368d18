package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"prorata/internal/amqp"
	"prorata/internal/core"
	"prorata/internal/storage/memory"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent []sentMail
}

func (f *fakeSender) SendInviteEmail(to, inviterName, joinURL string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: "invite", body: inviterName + " " + joinURL})
	return nil
}

func (f *fakeSender) SendMonthClosedEmail(to string, year, month int, summary string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: "closed", body: summary})
	return nil
}

func seedCouple(t *testing.T, store *memory.Store) (coupleID int64, adaID int64, benID int64) {
	t.Helper()
	ctx := context.Background()

	adaID, err := store.InsertUser(ctx, &core.User{Email: "ada@example.com", DisplayName: "Ada", PasswordHash: "x", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("InsertUser(ada) error = %v", err)
	}
	benID, err = store.InsertUser(ctx, &core.User{Email: "ben@example.com", DisplayName: "Ben", PasswordHash: "x", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("InsertUser(ben) error = %v", err)
	}
	coupleID, err = store.InsertCouple(ctx, &core.Couple{Mode: core.ModeEqual, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("InsertCouple() error = %v", err)
	}
	for _, uid := range []int64{adaID, benID} {
		if err := store.AddMember(ctx, coupleID, uid); err != nil {
			t.Fatalf("AddMember(%d) error = %v", uid, err)
		}
	}
	return coupleID, adaID, benID
}

func TestHandleInviteCreated(t *testing.T) {
	store := memory.NewStore()
	coupleID, _, _ := seedCouple(t, store)
	ctx := context.Background()

	inviteID, err := store.InsertInvite(ctx, &core.Invite{
		CoupleID:     coupleID,
		InvitedEmail: "carol@example.com",
		Token:        "tok42",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertInvite() error = %v", err)
	}

	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	if err := w.HandleMessage(ctx, amqp.NewInviteCreatedMessage(inviteID)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(sender.sent))
	}
	m := sender.sent[0]
	if m.to != "carol@example.com" {
		t.Errorf("mail to = %v", m.to)
	}
	if !strings.Contains(m.body, "Ada") {
		t.Errorf("mail body missing inviter name: %q", m.body)
	}
	if !strings.Contains(m.body, "token=tok42") {
		t.Errorf("mail body missing join link: %q", m.body)
	}
}

func TestHandleInviteCreatedSkipsRedeemed(t *testing.T) {
	store := memory.NewStore()
	coupleID, _, _ := seedCouple(t, store)
	ctx := context.Background()

	inviteID, err := store.InsertInvite(ctx, &core.Invite{
		CoupleID:     coupleID,
		InvitedEmail: "carol@example.com",
		Token:        "tok42",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertInvite() error = %v", err)
	}
	if err := store.MarkInviteUsed(ctx, inviteID); err != nil {
		t.Fatalf("MarkInviteUsed() error = %v", err)
	}

	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	if err := w.HandleMessage(ctx, amqp.NewInviteCreatedMessage(inviteID)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d mails for redeemed invite, want 0", len(sender.sent))
	}
}

func TestHandleInviteCreatedMissingInvite(t *testing.T) {
	store := memory.NewStore()
	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	// Missing records drop the message instead of requeueing forever.
	if err := w.HandleMessage(context.Background(), amqp.NewInviteCreatedMessage(999)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d mails, want 0", len(sender.sent))
	}
}

func TestHandleMonthClosed(t *testing.T) {
	store := memory.NewStore()
	coupleID, adaID, benID := seedCouple(t, store)
	ctx := context.Background()

	snapshot, err := core.EncodeSnapshot(core.BalanceBreakdown{
		Year:       2026,
		Month:      1,
		TotalCents: 10000,
		Currency:   "EUR",
		Mode:       core.ModeEqual,
		Members: []core.MemberBalance{
			{UserID: adaID, DisplayName: "Ada", Weight: 0.5, TargetCents: 5000, PaidCents: 6000, DeltaCents: 1000},
			{UserID: benID, DisplayName: "Ben", Weight: 0.5, TargetCents: 5000, PaidCents: 4000, DeltaCents: -1000},
		},
		Settlement: &core.Settlement{FromUserID: benID, ToUserID: adaID, AmountCents: 1000},
		IsClosed:   true,
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	_, err = store.InsertClosure(ctx, &core.MonthClosure{
		CoupleID: coupleID,
		Year:     2026,
		Month:    1,
		ClosedAt: time.Now(),
		Snapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("InsertClosure() error = %v", err)
	}

	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	if err := w.HandleMessage(ctx, amqp.NewMonthClosedMessage(coupleID, 2026, 1)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d mails, want 2", len(sender.sent))
	}
	for _, m := range sender.sent {
		if !strings.Contains(m.body, "Ben owes Ada 10.00 EUR") {
			t.Errorf("mail body = %q, want settlement sentence", m.body)
		}
		if !strings.Contains(m.body, "Total spent: 100.00 EUR") {
			t.Errorf("mail body = %q, want total", m.body)
		}
	}
}

func TestHandleMonthClosedEvenMonth(t *testing.T) {
	store := memory.NewStore()
	coupleID, _, _ := seedCouple(t, store)
	ctx := context.Background()

	snapshot, err := core.EncodeSnapshot(core.BalanceBreakdown{
		Year:       2026,
		Month:      2,
		TotalCents: 8000,
		Currency:   "EUR",
		Mode:       core.ModeEqual,
		IsClosed:   true,
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	if _, err := store.InsertClosure(ctx, &core.MonthClosure{
		CoupleID: coupleID,
		Year:     2026,
		Month:    2,
		ClosedAt: time.Now(),
		Snapshot: snapshot,
	}); err != nil {
		t.Fatalf("InsertClosure() error = %v", err)
	}

	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	if err := w.HandleMessage(ctx, amqp.NewMonthClosedMessage(coupleID, 2026, 2)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	for _, m := range sender.sent {
		if !strings.Contains(m.body, "nothing to settle") {
			t.Errorf("mail body = %q, want even-month sentence", m.body)
		}
	}
}

func TestHandleExpenseEventNoMail(t *testing.T) {
	store := memory.NewStore()
	sender := &fakeSender{}
	w := NewNotifyWorker(store, sender, "https://prorata.example.com")

	if err := w.HandleMessage(context.Background(), amqp.NewExpenseEventMessage("created", 1, 2, 2026, 1)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d mails for expense event, want 0", len(sender.sent))
	}
}
