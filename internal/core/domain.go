package core

import (
	"errors"
	"strings"
	"time"
)

const (
	ModeEqual      SplitMode = "equal"
	ModeIncome     SplitMode = "income"
	ModePercentage SplitMode = "percentage"
)

type (
	// SplitMode selects how a couple's monthly total is divided.
	SplitMode string

	Date struct {
		time.Time
	}

	User struct {
		ID           int64
		Email        string
		DisplayName  string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Couple is the two-person unit sharing expenses. Membership is
	// capped at two and kept in join order.
	Couple struct {
		ID        int64
		Mode      SplitMode
		CreatedAt time.Time
	}

	// Member is a user's participation in a couple. IncomeCents is
	// meaningful only in income mode, Percentage only in percentage
	// mode; switching modes clears the other field.
	Member struct {
		UserID      int64
		DisplayName string
		Email       string
		IncomeCents *int64
		Percentage  *int64
		JoinedAt    time.Time
	}

	// MemberPair carries a couple's members in join order. The A/B
	// ordering decides balance slots and settlement direction, so the
	// type uses named fields rather than an indexable list.
	MemberPair struct {
		A *Member
		B *Member
	}

	Expense struct {
		ID           int64
		CoupleID     int64
		PaidByUserID int64
		Title        string
		Category     string
		AmountCents  int64
		Currency     string
		SpentAt      Date
		CreatedAt    time.Time
	}

	Invite struct {
		ID           int64
		CoupleID     int64
		InvitedEmail string
		Token        string
		CreatedAt    time.Time
		UsedAt       *time.Time
	}

	// MonthClosure freezes one (couple, year, month). Snapshot holds the
	// serialized balance breakdown computed at closure time; it is never
	// rewritten.
	MonthClosure struct {
		ID       int64
		CoupleID int64
		Year     int
		Month    int
		ClosedAt time.Time
		Snapshot []byte
	}
)

var (
	ErrInvalidMode     = errors.New("invalid split mode")
	ErrInvalidMonth    = errors.New("month must be between 1 and 12")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	ErrEmptyTitle      = errors.New("empty title")
	ErrEmptyCategory   = errors.New("empty category")
	ErrZeroDate        = errors.New("date cannot be zero")
)

func ParseSplitMode(s string) (SplitMode, error) {
	switch SplitMode(s) {
	case ModeEqual, ModeIncome, ModePercentage:
		return SplitMode(s), nil
	}
	return "", ErrInvalidMode
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Month returns the calendar month (1-12). An expense's monthly bucket
// is derived solely from its date's year and month components.
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Count returns the number of members in the pair (0, 1 or 2).
func (p MemberPair) Count() int {
	switch {
	case p.A == nil:
		return 0
	case p.B == nil:
		return 1
	default:
		return 2
	}
}

// Has reports whether userID belongs to the pair.
func (p MemberPair) Has(userID int64) bool {
	if p.A != nil && p.A.UserID == userID {
		return true
	}
	return p.B != nil && p.B.UserID == userID
}

// Full reports whether the couple already has two members.
func (p MemberPair) Full() bool {
	return p.Count() == 2
}

func (e Expense) Validate() error {
	if err := e.SpentAt.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if len(e.Title) > 255 {
		return errors.New("title too long (max 255 characters)")
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if len(e.Currency) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}

// Used reports whether the invite has already been redeemed.
func (i Invite) Used() bool {
	return i.UsedAt != nil
}

// ValidateYearMonth checks a (year, month) key used for balance and
// closure lookups.
func ValidateYearMonth(year, month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	if year < 1970 || year > 9999 {
		return errors.New("year out of range")
	}
	return nil
}
