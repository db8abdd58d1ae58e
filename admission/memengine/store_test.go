package memengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

func Test_Store_InTx_RollbackDiscardsStagedWrites(t *testing.T) {
	// arrange
	ctx := context.Background()
	inventory := admission.BuildInventory(uuid.New(), 1)
	store, err := NewStore(WithInventories(inventory))
	require.NoError(t, err)
	boom := errors.New("boom")

	// act
	err = store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		locked, lockErr := tx.LockInventory(ctx, inventory.ResourceID)
		require.NoError(t, lockErr)

		lent, lendErr := locked.WithOneCopyLent()
		require.NoError(t, lendErr)
		require.NoError(t, tx.SaveInventory(ctx, lent))

		return boom
	})

	// assert
	assert.ErrorIs(t, err, boom)
	reloaded, loadErr := store.LoadInventory(ctx, inventory.ResourceID)
	require.NoError(t, loadErr)
	assert.Equal(t, 1, reloaded.AvailableCopies)
}

func Test_Store_InTx_CommitAppliesStagedWrites(t *testing.T) {
	// arrange
	ctx := context.Background()
	inventory := admission.BuildInventory(uuid.New(), 2)
	store, err := NewStore(WithInventories(inventory))
	require.NoError(t, err)
	obligation := admission.BuildRequestedObligation(uuid.New(), uuid.New(), inventory.ResourceID, time.Now(), time.Hour)

	// act
	err = store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		locked, lockErr := tx.LockInventory(ctx, inventory.ResourceID)
		if lockErr != nil {
			return lockErr
		}

		lent, lendErr := locked.WithOneCopyLent()
		if lendErr != nil {
			return lendErr
		}

		if saveErr := tx.SaveInventory(ctx, lent); saveErr != nil {
			return saveErr
		}

		staged, readErr := tx.ObligationsByActor(ctx, obligation.ActorID, admission.OpenStatuses()...)
		require.NoError(t, readErr)
		assert.Empty(t, staged)

		return tx.InsertObligation(ctx, obligation)
	})

	// assert
	require.NoError(t, err)
	reloaded, _ := store.LoadInventory(ctx, inventory.ResourceID)
	assert.Equal(t, 1, reloaded.AvailableCopies)
	list, _ := store.ObligationsByActor(ctx, obligation.ActorID, admission.VisibleStatuses()...)
	require.Len(t, list, 1)
	assert.Equal(t, obligation.ObligationID, list[0].ObligationID)
}

func Test_Store_LockInventory_TimesOutWithContention(t *testing.T) {
	// arrange
	ctx := context.Background()
	inventory := admission.BuildInventory(uuid.New(), 1)
	store, err := NewStore(WithInventories(inventory), WithLockTimeout(20*time.Millisecond))
	require.NoError(t, err)

	holding := make(chan struct{})
	releaseHolder := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
			if _, lockErr := tx.LockInventory(ctx, inventory.ResourceID); lockErr != nil {
				return lockErr
			}

			close(holding)
			<-releaseHolder

			return nil
		})
	}()

	<-holding

	// act
	err = store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		_, lockErr := tx.LockInventory(ctx, inventory.ResourceID)
		return lockErr
	})

	// assert
	assert.ErrorIs(t, err, admission.ErrContention)
	assert.True(t, admission.IsRetryable(err))

	close(releaseHolder)
	assert.NoError(t, <-holderDone)
}

func Test_Store_LockInventory_HonoursContextCancellation(t *testing.T) {
	// arrange
	inventory := admission.BuildInventory(uuid.New(), 1)
	store, err := NewStore(WithInventories(inventory))
	require.NoError(t, err)

	holding := make(chan struct{})
	releaseHolder := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- store.InTx(context.Background(), func(ctx context.Context, tx admission.Tx) error {
			if _, lockErr := tx.LockInventory(ctx, inventory.ResourceID); lockErr != nil {
				return lockErr
			}

			close(holding)
			<-releaseHolder

			return nil
		})
	}()

	<-holding
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// act
	err = store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		_, lockErr := tx.LockInventory(ctx, inventory.ResourceID)
		return lockErr
	})

	// assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(releaseHolder)
	assert.NoError(t, <-holderDone)
}

func Test_Store_LockInventory_UnknownResource(t *testing.T) {
	// arrange
	store, err := NewStore()
	require.NoError(t, err)

	// act
	err = store.InTx(context.Background(), func(ctx context.Context, tx admission.Tx) error {
		_, lockErr := tx.LockInventory(ctx, uuid.New())
		return lockErr
	})

	// assert
	assert.ErrorIs(t, err, admission.ErrResourceNotFound)
}

func Test_Store_MarkOverdue_OnlyMovesActivePastDue(t *testing.T) {
	// arrange
	ctx := context.Background()
	store, err := NewStore()
	require.NoError(t, err)

	createdAt := time.Now().Add(-48 * time.Hour)
	actorID := uuid.New()
	pastDueActive := admission.BuildRequestedObligation(uuid.New(), actorID, uuid.New(), createdAt, time.Hour).Activated()
	pastDueRequested := admission.BuildRequestedObligation(uuid.New(), actorID, uuid.New(), createdAt, time.Hour)
	notYetDue := admission.BuildRequestedObligation(uuid.New(), actorID, uuid.New(), createdAt, 96*time.Hour).Activated()

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		for _, o := range []admission.Obligation{pastDueActive, pastDueRequested, notYetDue} {
			if insertErr := tx.InsertObligation(ctx, o); insertErr != nil {
				return insertErr
			}
		}

		return nil
	}))

	// act
	marked, err := store.MarkOverdue(ctx, time.Now())

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	_, obligations := store.Snapshot()
	assert.Equal(t, admission.StatusOverdue, obligations[pastDueActive.ObligationID].Status)
	assert.Equal(t, admission.StatusRequested, obligations[pastDueRequested.ObligationID].Status)
	assert.Equal(t, admission.StatusActive, obligations[notYetDue.ObligationID].Status)
}

func Test_NewStore_RejectsInvalidOptions(t *testing.T) {
	_, errTimeout := NewStore(WithLockTimeout(-time.Second))
	_, errInventory := NewStore(WithInventories(admission.Inventory{TotalCopies: 1, AvailableCopies: 2}))

	assert.ErrorIs(t, errTimeout, admission.ErrNegativeLockTimeout)
	assert.ErrorIs(t, errInventory, admission.ErrInvariantViolated)
}
