package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// Engine admits, activates and closes loans against an admission.Store.
type Engine struct {
	store            admission.Store
	policy           admission.Policy
	now              func() time.Time
	newID            func() (uuid.UUID, error)
	strictActorQuota bool
	logger           admission.Logger
	contextualLogger admission.ContextualLogger
	metricsCollector admission.MetricsCollector
	tracingCollector admission.TracingCollector
}

// New creates an Engine with the default 14 days / 3 loans policy.
func New(store admission.Store, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, admission.ErrNilDatabaseConnection
	}

	e := &Engine{
		store:  store,
		policy: admission.DefaultPolicy(),
		now:    time.Now,
		newID:  uuid.NewV7,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Policy returns the policy the Engine applies.
func (e *Engine) Policy() admission.Policy {
	return e.policy
}

// RequestLoan atomically admits a loan of one copy of resourceID to actorID.
//
// The inventory record is locked for update before the eligibility check, so the check and the
// decrement happen against state no concurrent request can change. Everything runs in one
// transaction: if persisting the obligation fails, the decrement is rolled back too.
func (e *Engine) RequestLoan(ctx context.Context, actorID, resourceID uuid.UUID) (admission.Obligation, error) {
	observer, ctx := e.startOperation(
		ctx,
		operationRequestLoan,
		map[string]string{spanAttrActorID: actorID.String(), spanAttrResourceID: resourceID.String()},
		spanAttrActorID, actorID.String(), spanAttrResourceID, resourceID.String(),
	)

	obligationID, err := e.newID()
	if err != nil {
		err = fmt.Errorf("generating obligation id: %w", err)
		observer.finish(err, nil)

		return admission.Obligation{}, err
	}

	var decision LoanDecision

	err = e.store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		if e.strictActorQuota {
			if lockErr := tx.LockActor(ctx, actorID); lockErr != nil {
				return lockErr
			}
		}

		inventory, txErr := tx.LockInventory(ctx, resourceID)
		if txErr != nil {
			return txErr
		}

		open, txErr := tx.ObligationsByActor(ctx, actorID, admission.OpenStatuses()...)
		if txErr != nil {
			return txErr
		}

		decision, txErr = DecideLoan(
			inventory,
			open,
			LoanCommand{ObligationID: obligationID, ActorID: actorID, ResourceID: resourceID, RequestedAt: e.now()},
			e.policy,
		)
		if txErr != nil {
			return txErr
		}

		if txErr = tx.SaveInventory(ctx, decision.Inventory); txErr != nil {
			return txErr
		}

		return tx.InsertObligation(ctx, decision.Obligation)
	})

	if err != nil {
		observer.finish(err, nil)
		return admission.Obligation{}, err
	}

	observer.finish(nil, map[string]string{spanAttrObligationID: decision.Obligation.ObligationID.String()})

	return decision.Obligation, nil
}

// ListObligations returns all obligations of the actor, ordered by creation time and then ID.
// It honours the consistency level of ctx, see admission.WithEventualConsistency.
func (e *Engine) ListObligations(ctx context.Context, actorID uuid.UUID) (admission.Obligations, error) {
	observer, ctx := e.startOperation(
		ctx,
		operationListObligations,
		map[string]string{spanAttrActorID: actorID.String()},
		spanAttrActorID, actorID.String(),
	)

	list, err := e.store.ObligationsByActor(ctx, actorID, admission.VisibleStatuses()...)
	if err != nil {
		observer.finish(err, nil)
		return nil, err
	}

	list.SortStable()
	observer.finish(nil, map[string]string{"count": strconv.Itoa(len(list))})

	return list, nil
}

// ActivateLoan marks a REQUESTED obligation as ACTIVE once the copy was handed over.
func (e *Engine) ActivateLoan(ctx context.Context, obligationID uuid.UUID) (admission.Obligation, error) {
	observer, ctx := e.startOperation(
		ctx,
		operationActivateLoan,
		map[string]string{spanAttrObligationID: obligationID.String()},
		spanAttrObligationID, obligationID.String(),
	)

	var (
		activated  admission.Obligation
		idempotent bool
	)

	err := e.store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		obligation, txErr := tx.LockObligation(ctx, obligationID)
		if txErr != nil {
			return txErr
		}

		activated, idempotent, txErr = DecideActivation(obligation)
		if txErr != nil || idempotent {
			return txErr
		}

		return tx.UpdateObligation(ctx, activated)
	})

	if err != nil {
		observer.finish(err, nil)
		return admission.Obligation{}, err
	}

	observer.finish(nil, map[string]string{spanAttrIdempotent: strconv.FormatBool(idempotent)})

	return activated, nil
}

// ReturnLoan closes the actor's obligation and puts the copy back into the inventory.
// The obligation is locked before the inventory; returning an already returned obligation is a no-op.
func (e *Engine) ReturnLoan(ctx context.Context, actorID, obligationID uuid.UUID) (admission.Obligation, error) {
	observer, ctx := e.startOperation(
		ctx,
		operationReturnLoan,
		map[string]string{spanAttrActorID: actorID.String(), spanAttrObligationID: obligationID.String()},
		spanAttrActorID, actorID.String(), spanAttrObligationID, obligationID.String(),
	)

	var decision ReturnDecision

	err := e.store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		obligation, txErr := tx.LockObligation(ctx, obligationID)
		if txErr != nil {
			return txErr
		}

		command := ReturnCommand{ActorID: actorID, ObligationID: obligationID, ReturnedAt: e.now()}

		idempotent, txErr := CheckReturn(obligation, command)
		if txErr != nil {
			return txErr
		}

		if idempotent {
			decision = ReturnDecision{Obligation: obligation, Idempotent: true}
			return nil
		}

		inventory, txErr := tx.LockInventory(ctx, obligation.ResourceID)
		if txErr != nil {
			return txErr
		}

		decision, txErr = DecideReturn(obligation, inventory, command)
		if txErr != nil {
			return txErr
		}

		if txErr = tx.SaveInventory(ctx, decision.Inventory); txErr != nil {
			return txErr
		}

		return tx.UpdateObligation(ctx, decision.Obligation)
	})

	if err != nil {
		observer.finish(err, nil)
		return admission.Obligation{}, err
	}

	observer.finish(nil, map[string]string{spanAttrIdempotent: strconv.FormatBool(decision.Idempotent)})

	return decision.Obligation, nil
}

// MarkOverdue moves every ACTIVE obligation whose due date has passed to OVERDUE.
// Actors holding an OVERDUE obligation cannot be admitted new loans.
func (e *Engine) MarkOverdue(ctx context.Context) (int64, error) {
	observer, ctx := e.startOperation(ctx, operationMarkOverdue, nil)

	marked, err := e.store.MarkOverdue(ctx, e.now())
	if err != nil {
		observer.finish(err, nil)
		return 0, err
	}

	e.recordValue(ctx, metricMarkedOverdue, float64(marked), map[string]string{spanAttrOperation: operationMarkOverdue})
	observer.finish(nil, map[string]string{"count": strconv.FormatInt(marked, 10)})

	return marked, nil
}
