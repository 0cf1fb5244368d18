package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"prorata/internal/amqp"
	"prorata/internal/core"
	"prorata/internal/mail"
	"prorata/internal/services"
)

// NotifyWorker turns queue events into notification emails. It fetches
// full records from storage so messages stay small and replayable.
type NotifyWorker struct {
	store   services.Store
	mailer  mail.Sender
	baseURL string
}

func NewNotifyWorker(store services.Store, mailer mail.Sender, baseURL string) *NotifyWorker {
	return &NotifyWorker{
		store:   store,
		mailer:  mailer,
		baseURL: baseURL,
	}
}

// HandleMessage processes a single queue message. Stale messages whose
// records disappeared are dropped, not requeued.
func (w *NotifyWorker) HandleMessage(ctx context.Context, msg *amqp.Message) error {
	switch msg.Kind {
	case amqp.KindInviteCreated:
		return w.handleInviteCreated(ctx, msg)
	case amqp.KindMonthClosed:
		return w.handleMonthClosed(ctx, msg)
	case amqp.KindExpenseEvent:
		// Expense events are informational; no notification today.
		slog.InfoContext(ctx, "Expense event received",
			"action", msg.Action,
			"couple_id", msg.CoupleID,
			"expense_id", msg.ExpenseID)
		return nil
	default:
		slog.WarnContext(ctx, "Unknown message kind, dropping", "kind", msg.Kind)
		return nil
	}
}

func (w *NotifyWorker) handleInviteCreated(ctx context.Context, msg *amqp.Message) error {
	invite, err := w.store.FindInviteByID(ctx, msg.InviteID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Invite no longer exists, dropping message", "invite_id", msg.InviteID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find invite: %w", err)
	}
	if invite.Used() {
		slog.InfoContext(ctx, "Invite already redeemed, skipping email", "invite_id", invite.ID)
		return nil
	}

	pair, err := w.store.OrderedMembers(ctx, invite.CoupleID)
	if err != nil {
		return fmt.Errorf("ordered members: %w", err)
	}
	inviterName := "Your partner"
	if pair.A != nil {
		inviterName = pair.A.DisplayName
	}

	joinURL := fmt.Sprintf("%s/join?token=%s", w.baseURL, invite.Token)
	if err := w.mailer.SendInviteEmail(invite.InvitedEmail, inviterName, joinURL); err != nil {
		return fmt.Errorf("send invite email: %w", err)
	}

	slog.InfoContext(ctx, "Invite email sent",
		"invite_id", invite.ID,
		"couple_id", invite.CoupleID)
	return nil
}

func (w *NotifyWorker) handleMonthClosed(ctx context.Context, msg *amqp.Message) error {
	closure, err := w.store.FindClosure(ctx, msg.CoupleID, msg.Year, msg.Month)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Closure no longer exists, dropping message",
			"couple_id", msg.CoupleID,
			"year", msg.Year,
			"month", msg.Month)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find closure: %w", err)
	}

	balance, err := core.DecodeSnapshot(closure.Snapshot)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	pair, err := w.store.OrderedMembers(ctx, msg.CoupleID)
	if err != nil {
		return fmt.Errorf("ordered members: %w", err)
	}

	summary := settlementSummary(balance, pair)
	for _, m := range []*core.Member{pair.A, pair.B} {
		if m == nil {
			continue
		}
		if err := w.mailer.SendMonthClosedEmail(m.Email, msg.Year, msg.Month, summary); err != nil {
			return fmt.Errorf("send month closed email: %w", err)
		}
	}

	slog.InfoContext(ctx, "Month closed emails sent",
		"couple_id", msg.CoupleID,
		"year", msg.Year,
		"month", msg.Month)
	return nil
}

// settlementSummary renders the snapshot settlement as a human
// sentence for the notification email.
func settlementSummary(b core.BalanceBreakdown, pair core.MemberPair) string {
	if b.Settlement == nil {
		return fmt.Sprintf("Total spent: %s. You are even, nothing to settle.", formatCents(b.TotalCents, b.Currency))
	}

	names := map[int64]string{}
	for _, m := range []*core.Member{pair.A, pair.B} {
		if m != nil {
			names[m.UserID] = m.DisplayName
		}
	}
	from := names[b.Settlement.FromUserID]
	to := names[b.Settlement.ToUserID]
	if from == "" {
		from = "one partner"
	}
	if to == "" {
		to = "the other"
	}

	return fmt.Sprintf("Total spent: %s. %s owes %s %s.",
		formatCents(b.TotalCents, b.Currency),
		from, to,
		formatCents(b.Settlement.AmountCents, b.Currency))
}

func formatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
