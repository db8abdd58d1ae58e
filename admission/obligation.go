package admission

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an Obligation.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusActive    Status = "ACTIVE"
	StatusReturned  Status = "RETURNED"
	StatusOverdue   Status = "OVERDUE"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusActive, StatusReturned, StatusOverdue:
		return true
	default:
		return false
	}
}

// OpenStatuses are the statuses of obligations that are not yet returned.
func OpenStatuses() []Status {
	return []Status{StatusRequested, StatusActive, StatusOverdue}
}

// QuotaStatuses are the statuses counted against the concurrent-loan limit.
func QuotaStatuses() []Status {
	return []Status{StatusRequested, StatusActive}
}

// VisibleStatuses are the statuses returned when listing an actor's obligations.
func VisibleStatuses() []Status {
	return []Status{StatusRequested, StatusActive, StatusReturned, StatusOverdue}
}

// Obligation is one loan of one resource by one actor.
type Obligation struct {
	ObligationID uuid.UUID  `json:"obligationId"`
	ActorID      uuid.UUID  `json:"actorId"`
	ResourceID   uuid.UUID  `json:"resourceId"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	DueAt        time.Time  `json:"dueAt"`
	ReturnedAt   *time.Time `json:"returnedAt,omitempty"`
}

// Obligations is a collection of Obligation records.
type Obligations []Obligation

// BuildRequestedObligation creates a new REQUESTED obligation due loanPeriod after createdAt.
func BuildRequestedObligation(
	obligationID uuid.UUID,
	actorID uuid.UUID,
	resourceID uuid.UUID,
	createdAt time.Time,
	loanPeriod time.Duration,
) Obligation {
	createdAt = ToTimestamp(createdAt)

	return Obligation{
		ObligationID: obligationID,
		ActorID:      actorID,
		ResourceID:   resourceID,
		Status:       StatusRequested,
		CreatedAt:    createdAt,
		DueAt:        createdAt.Add(loanPeriod),
	}
}

// ToTimestamp normalizes t to UTC with microsecond precision so it survives a database round-trip.
func ToTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Validate checks that ReturnedAt is set iff the obligation is RETURNED.
func (o Obligation) Validate() error {
	if !o.Status.Valid() {
		return fmt.Errorf("%w: obligation %s has unknown status %q", ErrInvariantViolated, o.ObligationID, o.Status)
	}

	if (o.Status == StatusReturned) != (o.ReturnedAt != nil) {
		return fmt.Errorf("%w: obligation %s is %s with returnedAt=%v", ErrInvariantViolated, o.ObligationID, o.Status, o.ReturnedAt)
	}

	return nil
}

// IsOpen reports whether the obligation still holds a copy.
func (o Obligation) IsOpen() bool {
	return o.Status != StatusReturned
}

// HasStatus reports whether the obligation has one of the given statuses.
func (o Obligation) HasStatus(statuses ...Status) bool {
	return slices.Contains(statuses, o.Status)
}

// Activated returns the obligation in status ACTIVE.
func (o Obligation) Activated() Obligation {
	o.Status = StatusActive
	return o
}

// Returned returns the obligation in status RETURNED, returned at the given time.
func (o Obligation) Returned(returnedAt time.Time) Obligation {
	ts := ToTimestamp(returnedAt)
	o.Status = StatusReturned
	o.ReturnedAt = &ts

	return o
}

// Overdue returns the obligation in status OVERDUE.
func (o Obligation) Overdue() Obligation {
	o.Status = StatusOverdue
	return o
}

// IsPastDue reports whether asOf is after the due date.
func (o Obligation) IsPastDue(asOf time.Time) bool {
	return asOf.After(o.DueAt)
}

// Filter returns the obligations having one of the given statuses.
func (list Obligations) Filter(statuses ...Status) Obligations {
	filtered := make(Obligations, 0, len(list))

	for _, o := range list {
		if o.HasStatus(statuses...) {
			filtered = append(filtered, o)
		}
	}

	return filtered
}

// Count returns how many obligations have one of the given statuses.
func (list Obligations) Count(statuses ...Status) int {
	count := 0

	for _, o := range list {
		if o.HasStatus(statuses...) {
			count++
		}
	}

	return count
}

// SortStable orders obligations by CreatedAt, then ObligationID.
func (list Obligations) SortStable() {
	slices.SortStableFunc(list, func(a, b Obligation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return slices.Compare(a.ObligationID[:], b.ObligationID[:])
	})
}
