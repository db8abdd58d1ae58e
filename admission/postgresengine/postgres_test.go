package postgresengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/admission/engine"
	"github.com/AntonStoeckl/library-admission-go/admission/postgresengine"
	"github.com/AntonStoeckl/library-admission-go/testutil/postgres/postgreswrapper"
	"github.com/AntonStoeckl/library-admission-go/testutil/testdoubles"
)

func givenInventory(t *testing.T, ctx context.Context, store *postgresengine.Store, copies int) uuid.UUID {
	t.Helper()

	resourceID := uuid.New()
	require.NoError(t, store.PutInventory(ctx, admission.BuildInventory(resourceID, copies)))

	return resourceID
}

func Test_RequestLoan_ConcurrentRequestsForLastCopy_AdmitExactlyOne(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	store := wrapper.Store()
	e, err := engine.New(store)
	require.NoError(t, err)

	// arrange
	resourceID := givenInventory(t, ctxWithTimeout, store, 1)

	const requesters = 10
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		admitted    int
		unavailable int
	)

	// act
	for range requesters {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, reqErr := e.RequestLoan(ctxWithTimeout, uuid.New(), resourceID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case reqErr == nil:
				admitted++
			case errors.Is(reqErr, admission.ErrResourceUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", reqErr)
			}
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, 1, admitted)
	assert.Equal(t, requesters-1, unavailable)

	inventory, err := store.LoadInventory(ctxWithTimeout, resourceID)
	require.NoError(t, err)
	assert.Equal(t, 0, inventory.AvailableCopies)
}

func Test_LoanLifecycle_RoundTripsThroughPostgres(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	store := wrapper.Store()
	now := time.Date(2025, 4, 1, 9, 30, 0, 123456789, time.UTC)
	e, err := engine.New(store, engine.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	// arrange
	actorID := uuid.New()
	resourceID := givenInventory(t, ctxWithTimeout, store, 2)

	// act
	requested, err := e.RequestLoan(ctxWithTimeout, actorID, resourceID)
	require.NoError(t, err)
	_, err = e.ActivateLoan(ctxWithTimeout, requested.ObligationID)
	require.NoError(t, err)
	listed, err := e.ListObligations(ctxWithTimeout, actorID)
	require.NoError(t, err)
	returned, err := e.ReturnLoan(ctxWithTimeout, actorID, requested.ObligationID)
	require.NoError(t, err)
	again, againErr := e.ReturnLoan(ctxWithTimeout, actorID, requested.ObligationID)

	// assert
	require.Len(t, listed, 1)
	assert.Equal(t, admission.StatusActive, listed[0].Status)
	assert.True(t, listed[0].CreatedAt.Equal(admission.ToTimestamp(now)))
	assert.True(t, listed[0].DueAt.Equal(admission.ToTimestamp(now).Add(14*24*time.Hour)))
	assert.Nil(t, listed[0].ReturnedAt)

	assert.Equal(t, admission.StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
	assert.NoError(t, againErr)
	assert.Equal(t, admission.StatusReturned, again.Status)

	inventory, err := store.LoadInventory(ctxWithTimeout, resourceID)
	require.NoError(t, err)
	assert.Equal(t, 2, inventory.AvailableCopies)
}

func Test_LockInventory_When_LockIsHeld_FailsWithContention(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, postgresengine.WithLockTimeout(50*time.Millisecond))
	store := wrapper.Store()

	// arrange
	resourceID := givenInventory(t, ctxWithTimeout, store, 1)
	locked := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- store.InTx(ctxWithTimeout, func(ctx context.Context, tx admission.Tx) error {
			if _, lockErr := tx.LockInventory(ctx, resourceID); lockErr != nil {
				close(locked)
				return lockErr
			}

			close(locked)
			<-release

			return nil
		})
	}()
	<-locked

	// act
	err := store.InTx(ctxWithTimeout, func(ctx context.Context, tx admission.Tx) error {
		_, lockErr := tx.LockInventory(ctx, resourceID)
		return lockErr
	})
	close(release)

	// assert
	assert.ErrorIs(t, err, admission.ErrContention)
	assert.True(t, admission.IsRetryable(err))
	assert.NoError(t, <-holderDone)
}

func Test_InsertObligation_ForUnknownResource_IsResourceNotFound(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	store := wrapper.Store()

	// arrange
	obligation := admission.BuildRequestedObligation(uuid.New(), uuid.New(), uuid.New(), time.Now(), time.Hour)

	// act
	err := store.InTx(ctxWithTimeout, func(ctx context.Context, tx admission.Tx) error {
		return tx.InsertObligation(ctx, obligation)
	})

	// assert
	assert.ErrorIs(t, err, admission.ErrResourceNotFound)
	assert.ErrorIs(t, err, admission.ErrWriteFailed)
}

func Test_InTx_When_FunctionFails_RollsBack(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	store := wrapper.Store()
	errForced := errors.New("forced")

	// arrange
	resourceID := givenInventory(t, ctxWithTimeout, store, 3)

	// act
	err := store.InTx(ctxWithTimeout, func(ctx context.Context, tx admission.Tx) error {
		inventory, lockErr := tx.LockInventory(ctx, resourceID)
		if lockErr != nil {
			return lockErr
		}

		lent, lendErr := inventory.WithOneCopyLent()
		if lendErr != nil {
			return lendErr
		}

		if saveErr := tx.SaveInventory(ctx, lent); saveErr != nil {
			return saveErr
		}

		return errForced
	})

	// assert
	assert.ErrorIs(t, err, errForced)
	inventory, loadErr := store.LoadInventory(ctxWithTimeout, resourceID)
	require.NoError(t, loadErr)
	assert.Equal(t, 3, inventory.AvailableCopies)
}

func Test_MarkOverdue_MovesOnlyActivePastDue(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	store := wrapper.Store()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	e, err := engine.New(store, engine.WithClock(func() time.Time { return now }), engine.WithLoanPeriod(time.Hour))
	require.NoError(t, err)

	// arrange
	actorID := uuid.New()
	resourceID := givenInventory(t, ctxWithTimeout, store, 3)
	active, err := e.RequestLoan(ctxWithTimeout, actorID, resourceID)
	require.NoError(t, err)
	_, err = e.ActivateLoan(ctxWithTimeout, active.ObligationID)
	require.NoError(t, err)
	_, err = e.RequestLoan(ctxWithTimeout, actorID, resourceID) // stays REQUESTED
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)

	// act
	marked, err := e.MarkOverdue(ctxWithTimeout)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	_, err = e.RequestLoan(ctxWithTimeout, actorID, resourceID)
	assert.ErrorIs(t, err, admission.ErrActorHasOverdue)
}

func Test_ObligationsByActor_WithEventualConsistency_ReadsFromReplica(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	pgxWrapper, ok := wrapper.(*postgreswrapper.PGXPoolWrapper)
	if !ok {
		t.Skip("replica routing is only available with the pgx.pool adapter")
	}

	// primary and replica are the same database here; the test checks the routed read works
	store, err := postgresengine.NewStoreFromPGXPoolWithReplica(pgxWrapper.Pool(), pgxWrapper.Pool())
	require.NoError(t, err)
	e, err := engine.New(store)
	require.NoError(t, err)

	// arrange
	actorID := uuid.New()
	resourceID := givenInventory(t, ctxWithTimeout, store, 1)
	_, err = e.RequestLoan(ctxWithTimeout, actorID, resourceID)
	require.NoError(t, err)

	// act
	list, err := store.ObligationsByActor(
		admission.WithEventualConsistency(ctxWithTimeout),
		actorID,
		admission.VisibleStatuses()...,
	)

	// assert
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func Test_Observability_Store_RecordsStatementsAndTransactions(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := testdoubles.NewLoggerSpy()
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracer := testdoubles.NewTracingCollectorSpy()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(
		t,
		postgresengine.WithContextualLogger(logger),
		postgresengine.WithMetrics(metrics),
		postgresengine.WithTracing(tracer),
	)
	store := wrapper.Store()
	e, err := engine.New(store)
	require.NoError(t, err)

	// arrange
	resourceID := givenInventory(t, ctxWithTimeout, store, 1)
	metrics.Reset()

	// act
	_, err = e.RequestLoan(ctxWithTimeout, uuid.New(), resourceID)

	// assert
	require.NoError(t, err)
	assert.NotEmpty(t, logger.Records("debug"))
	assert.NotEmpty(t, metrics.DurationRecords("admission_store_statement_duration_seconds"))

	transactions := metrics.DurationRecords("admission_store_transaction_duration_seconds")
	require.Len(t, transactions, 1)
	assert.Equal(t, "success", transactions[0].Labels["status"])

	spans := tracer.SpanRecords()
	require.NotEmpty(t, spans)
	assert.True(t, spans[len(spans)-1].Finished)
}
