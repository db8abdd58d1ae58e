package admission

import (
	"fmt"
	"time"
)

const (
	// DefaultLoanPeriod is the grace period between creating an obligation and its due date.
	DefaultLoanPeriod = 14 * 24 * time.Hour

	// DefaultMaxOpenLoans is the number of REQUESTED or ACTIVE obligations an actor may hold at once.
	DefaultMaxOpenLoans = 3
)

// Policy holds the eligibility rules applied when admitting a loan.
type Policy struct {
	LoanPeriod   time.Duration
	MaxOpenLoans int
}

// DefaultPolicy returns the 14 days / 3 loans policy.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:   DefaultLoanPeriod,
		MaxOpenLoans: DefaultMaxOpenLoans,
	}
}

// Validate checks that the loan period is positive and the loan limit is at least one.
func (p Policy) Validate() error {
	if p.LoanPeriod <= 0 {
		return fmt.Errorf("%w: loan period must be positive, got %s", ErrInvalidPolicy, p.LoanPeriod)
	}

	if p.MaxOpenLoans < 1 {
		return fmt.Errorf("%w: max open loans must be at least 1, got %d", ErrInvalidPolicy, p.MaxOpenLoans)
	}

	return nil
}
