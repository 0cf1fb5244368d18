package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"prorata/internal/core"
)

var (
	ErrSettingsIncomplete = errors.New("settings required for all members")
	ErrIncomeRequired     = errors.New("income must be positive for all members")
	ErrPercentageRequired = errors.New("percentage required for all members")
	ErrPercentageSum      = errors.New("percentages must sum to 100")
	ErrPercentageRange    = errors.New("percentage must be between 0 and 100")
)

// CoupleService handles couple creation, the invite/join workflow and
// the split policy settings.
type CoupleService struct {
	store  Store
	events EventPublisher
	now    func() time.Time
}

func NewCoupleService(store Store, events EventPublisher) *CoupleService {
	return &CoupleService{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// MemberSetting is one member's policy figure in a settings update.
type MemberSetting struct {
	UserID      int64
	IncomeCents *int64
	Percentage  *int64
}

// CoupleForUser resolves the couple a user belongs to. Returns
// core.ErrNotInCouple when there is none.
func (s *CoupleService) CoupleForUser(ctx context.Context, userID int64) (*core.Couple, error) {
	couple, err := s.store.FindCoupleByUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrNotInCouple
	}
	if err != nil {
		return nil, fmt.Errorf("find couple: %w", err)
	}
	return couple, nil
}

// Members returns the couple's members in join order.
func (s *CoupleService) Members(ctx context.Context, couple *core.Couple) (core.MemberPair, error) {
	pair, err := s.store.OrderedMembers(ctx, couple.ID)
	if err != nil {
		return core.MemberPair{}, fmt.Errorf("ordered members: %w", err)
	}
	return pair, nil
}

// Create starts a new couple with the calling user as member A. Fails
// when the user already belongs to one.
func (s *CoupleService) Create(ctx context.Context, userID int64) (*core.Couple, error) {
	if _, err := s.store.FindCoupleByUser(ctx, userID); err == nil {
		return nil, core.ErrAlreadyInCouple
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find couple: %w", err)
	}

	couple := &core.Couple{
		Mode:      core.ModeEqual,
		CreatedAt: s.now().UTC(),
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		id, err := tx.InsertCouple(ctx, couple)
		if err != nil {
			return fmt.Errorf("insert couple: %w", err)
		}
		couple.ID = id
		if err := tx.AddMember(ctx, id, userID); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Couple created", "couple_id", couple.ID, "user_id", userID)
	return couple, nil
}

// Invite issues an invite token for the couple's missing second member.
func (s *CoupleService) Invite(ctx context.Context, couple *core.Couple, email string) (*core.Invite, error) {
	pair, err := s.store.OrderedMembers(ctx, couple.ID)
	if err != nil {
		return nil, fmt.Errorf("ordered members: %w", err)
	}
	if pair.Full() {
		return nil, core.ErrCoupleFull
	}

	invite := &core.Invite{
		CoupleID:     couple.ID,
		InvitedEmail: strings.ToLower(strings.TrimSpace(email)),
		Token:        generateInviteToken(),
		CreatedAt:    s.now().UTC(),
	}

	id, err := s.store.InsertInvite(ctx, invite)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	invite.ID = id

	if s.events != nil {
		if err := s.events.PublishInviteCreated(ctx, invite.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish invite event",
				"invite_id", invite.ID, "couple_id", couple.ID, "error", err)
		}
	}

	return invite, nil
}

// Join redeems an invite token, adding the user as member B and marking
// the invite used. The invited email is recorded but not matched
// against the joining account.
func (s *CoupleService) Join(ctx context.Context, userID int64, token string) (*core.Couple, error) {
	if _, err := s.store.FindCoupleByUser(ctx, userID); err == nil {
		return nil, core.ErrAlreadyInCouple
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find couple: %w", err)
	}

	var couple *core.Couple
	err := s.store.WithTx(ctx, func(tx Store) error {
		invite, err := tx.FindValidInviteByToken(ctx, token)
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrInvalidInvite
		}
		if err != nil {
			return fmt.Errorf("find invite: %w", err)
		}

		pair, err := tx.OrderedMembers(ctx, invite.CoupleID)
		if err != nil {
			return fmt.Errorf("ordered members: %w", err)
		}
		if pair.Full() {
			return core.ErrCoupleFull
		}

		if err := tx.AddMember(ctx, invite.CoupleID, userID); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		if err := tx.MarkInviteUsed(ctx, invite.ID); err != nil {
			return fmt.Errorf("mark invite used: %w", err)
		}

		couple, err = tx.FindCoupleByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("find joined couple: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Couple joined", "couple_id", couple.ID, "user_id", userID)
	return couple, nil
}

// UpdateSettings switches the couple's split mode and applies the
// per-member figures. Income mode needs a positive income for both
// members, percentage mode needs two percentages within 0-100 summing
// to exactly 100 at save time. The field the new mode does not use is cleared.
func (s *CoupleService) UpdateSettings(ctx context.Context, couple *core.Couple, mode core.SplitMode, settings []MemberSetting) error {
	pair, err := s.store.OrderedMembers(ctx, couple.ID)
	if err != nil {
		return fmt.Errorf("ordered members: %w", err)
	}

	byUser := make(map[int64]MemberSetting, len(settings))
	for _, ms := range settings {
		byUser[ms.UserID] = ms
	}

	members := make([]*core.Member, 0, 2)
	if pair.A != nil {
		members = append(members, pair.A)
	}
	if pair.B != nil {
		members = append(members, pair.B)
	}

	if mode == core.ModeIncome || mode == core.ModePercentage {
		if len(settings) != len(members) {
			return ErrSettingsIncomplete
		}

		if mode == core.ModeIncome {
			for _, m := range members {
				ms, ok := byUser[m.UserID]
				if !ok || ms.IncomeCents == nil || *ms.IncomeCents <= 0 {
					return ErrIncomeRequired
				}
			}
		} else {
			var totalPct int64
			for _, m := range members {
				ms, ok := byUser[m.UserID]
				if !ok || ms.Percentage == nil {
					return ErrPercentageRequired
				}
				if *ms.Percentage < 0 || *ms.Percentage > 100 {
					return ErrPercentageRange
				}
				totalPct += *ms.Percentage
			}
			if totalPct != 100 {
				return ErrPercentageSum
			}
		}
	}

	return s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateCoupleMode(ctx, couple.ID, mode); err != nil {
			return fmt.Errorf("update mode: %w", err)
		}

		for _, m := range members {
			var income, pct *int64
			switch mode {
			case core.ModeIncome:
				ms := byUser[m.UserID]
				income = ms.IncomeCents
			case core.ModePercentage:
				ms := byUser[m.UserID]
				pct = ms.Percentage
			}
			if err := tx.UpdateMemberSettings(ctx, couple.ID, m.UserID, income, pct); err != nil {
				return fmt.Errorf("update member settings: %w", err)
			}
		}

		couple.Mode = mode
		return nil
	})
}

// generateInviteToken returns a 64-char random token, matching the
// invite token column width.
func generateInviteToken() string {
	raw := uuid.NewString() + uuid.NewString()
	return strings.ReplaceAll(raw, "-", "")
}
