package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyInCouple    = errors.New("user is already member of a couple")
	ErrNotInCouple        = errors.New("user has no couple")
	ErrCoupleFull         = errors.New("couple already has two members")
	ErrInvalidInvite      = errors.New("invite is invalid or already used")
	ErrPayerNotMember     = errors.New("payer is not a member of this couple")
	ErrClosureExists      = errors.New("closure already exists for this month")
)

// MonthClosedError rejects a mutation that targets an already closed
// month. The year/month pair feeds the user-facing message.
type MonthClosedError struct {
	Year  int
	Month int
}

func (e *MonthClosedError) Error() string {
	return fmt.Sprintf("month %04d-%02d is closed", e.Year, e.Month)
}

// IsMonthClosed reports whether err is a MonthClosedError.
func IsMonthClosed(err error) bool {
	var mc *MonthClosedError
	return errors.As(err, &mc)
}
