package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// LoanCommand carries everything DecideLoan needs besides the locked state.
type LoanCommand struct {
	ObligationID uuid.UUID
	ActorID      uuid.UUID
	ResourceID   uuid.UUID
	RequestedAt  time.Time
}

// LoanDecision is the state to persist after admitting a loan.
type LoanDecision struct {
	Inventory  admission.Inventory
	Obligation admission.Obligation
}

// DecideLoan implements the admission rule for a new loan.
// It is a pure function: it takes the locked inventory, the actor's open obligations and the command,
// and returns the new state to persist or the reason for rejecting the request.
//
// Business Rules:
//
//	GIVEN: an inventory locked for update and the open obligations of the actor
//	WHEN: a loan is requested
//	THEN: one copy fewer is available and a REQUESTED obligation due after the loan period exists
//	ERROR: ErrInvariantViolated if the inventory record is inconsistent
//	ERROR: ErrResourceUnavailable if no copy is available
//	ERROR: ErrActorHasOverdue if the actor has any OVERDUE obligation
//	ERROR: ErrActorQuotaExceeded if the actor holds MaxOpenLoans REQUESTED or ACTIVE obligations
func DecideLoan(
	inventory admission.Inventory,
	open admission.Obligations,
	command LoanCommand,
	policy admission.Policy,
) (LoanDecision, error) {
	if err := inventory.Validate(); err != nil {
		return LoanDecision{}, err
	}

	if inventory.ResourceID != command.ResourceID {
		return LoanDecision{}, fmt.Errorf(
			"%w: locked inventory %s does not match requested resource %s",
			admission.ErrInvariantViolated, inventory.ResourceID, command.ResourceID,
		)
	}

	if !inventory.HasAvailableCopies() {
		return LoanDecision{}, fmt.Errorf("%w: resource %s", admission.ErrResourceUnavailable, command.ResourceID)
	}

	if open.Count(admission.StatusOverdue) > 0 {
		return LoanDecision{}, fmt.Errorf("%w: actor %s", admission.ErrActorHasOverdue, command.ActorID)
	}

	if open.Count(admission.QuotaStatuses()...) >= policy.MaxOpenLoans {
		return LoanDecision{}, fmt.Errorf(
			"%w: actor %s holds %d of %d loans",
			admission.ErrActorQuotaExceeded, command.ActorID, open.Count(admission.QuotaStatuses()...), policy.MaxOpenLoans,
		)
	}

	lent, err := inventory.WithOneCopyLent()
	if err != nil {
		return LoanDecision{}, err
	}

	return LoanDecision{
		Inventory: lent,
		Obligation: admission.BuildRequestedObligation(
			command.ObligationID,
			command.ActorID,
			command.ResourceID,
			command.RequestedAt,
			policy.LoanPeriod,
		),
	}, nil
}

// ReturnCommand identifies the obligation an actor hands back.
type ReturnCommand struct {
	ActorID      uuid.UUID
	ObligationID uuid.UUID
	ReturnedAt   time.Time
}

// ReturnDecision is the state to persist after a return. Idempotent decisions persist nothing.
type ReturnDecision struct {
	Obligation admission.Obligation
	Inventory  admission.Inventory
	Idempotent bool
}

// CheckReturn decides whether a return needs the inventory at all.
// It reports idempotent=true if the obligation is already RETURNED.
func CheckReturn(obligation admission.Obligation, command ReturnCommand) (bool, error) {
	if obligation.ObligationID != command.ObligationID || obligation.ActorID != command.ActorID {
		return false, fmt.Errorf("%w: %s for actor %s", admission.ErrObligationNotFound, command.ObligationID, command.ActorID)
	}

	return obligation.Status == admission.StatusReturned, nil
}

// DecideReturn implements the rule for handing back a copy.
//
// Business Rules:
//
//	GIVEN: an obligation and the inventory of its resource, both locked for update
//	WHEN: the actor returns the copy
//	THEN: the obligation is RETURNED and one copy more is available
//	ERROR: ErrObligationNotFound if the obligation belongs to another actor
//	ERROR: ErrInvariantViolated if the return would exceed the total copies
//	IDEMPOTENCY: an obligation that is already RETURNED changes nothing
func DecideReturn(
	obligation admission.Obligation,
	inventory admission.Inventory,
	command ReturnCommand,
) (ReturnDecision, error) {
	idempotent, err := CheckReturn(obligation, command)
	if err != nil {
		return ReturnDecision{}, err
	}

	if idempotent {
		return ReturnDecision{Obligation: obligation, Inventory: inventory, Idempotent: true}, nil
	}

	if inventory.ResourceID != obligation.ResourceID {
		return ReturnDecision{}, fmt.Errorf(
			"%w: locked inventory %s does not match obligation resource %s",
			admission.ErrInvariantViolated, inventory.ResourceID, obligation.ResourceID,
		)
	}

	returned, err := inventory.WithOneCopyReturned()
	if err != nil {
		return ReturnDecision{}, err
	}

	return ReturnDecision{
		Obligation: obligation.Returned(command.ReturnedAt),
		Inventory:  returned,
	}, nil
}

// DecideActivation implements the fulfillment transition REQUESTED -> ACTIVE.
//
// Business Rules:
//
//	GIVEN: an obligation locked for update
//	WHEN: the copy is handed over
//	THEN: the obligation is ACTIVE with its original due date
//	ERROR: ErrInvalidTransition if the obligation is RETURNED or OVERDUE
//	IDEMPOTENCY: an obligation that is already ACTIVE changes nothing
func DecideActivation(obligation admission.Obligation) (admission.Obligation, bool, error) {
	switch obligation.Status {
	case admission.StatusRequested:
		return obligation.Activated(), false, nil
	case admission.StatusActive:
		return obligation, true, nil
	default:
		return obligation, false, fmt.Errorf(
			"%w: obligation %s is %s",
			admission.ErrInvalidTransition, obligation.ObligationID, obligation.Status,
		)
	}
}
