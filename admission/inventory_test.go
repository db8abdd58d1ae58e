package admission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Inventory_Validate(t *testing.T) {
	tests := []struct {
		name        string
		inventory   Inventory
		expectedErr error
	}{
		{name: "all copies available", inventory: Inventory{TotalCopies: 3, AvailableCopies: 3}},
		{name: "no copies available", inventory: Inventory{TotalCopies: 3, AvailableCopies: 0}},
		{name: "no copies at all", inventory: Inventory{TotalCopies: 0, AvailableCopies: 0}},
		{name: "negative available", inventory: Inventory{TotalCopies: 3, AvailableCopies: -1}, expectedErr: ErrInvariantViolated},
		{name: "more available than total", inventory: Inventory{TotalCopies: 3, AvailableCopies: 4}, expectedErr: ErrInvariantViolated},
		{name: "negative total", inventory: Inventory{TotalCopies: -1, AvailableCopies: 0}, expectedErr: ErrInvariantViolated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inventory.Validate()

			if tt.expectedErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_Inventory_WithOneCopyLent_DecrementsAvailableCopies(t *testing.T) {
	// arrange
	inventory := BuildInventory(uuid.New(), 2)

	// act
	lent, err := inventory.WithOneCopyLent()

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, lent.AvailableCopies)
	assert.Equal(t, 2, lent.TotalCopies)
	assert.Equal(t, 2, inventory.AvailableCopies, "the original value must stay untouched")
}

func Test_Inventory_WithOneCopyLent_FailsWhenNoCopyIsAvailable(t *testing.T) {
	// arrange
	inventory := Inventory{ResourceID: uuid.New(), TotalCopies: 1, AvailableCopies: 0}

	// act
	_, err := inventory.WithOneCopyLent()

	// assert
	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.NotErrorIs(t, err, ErrInvariantViolated)
}

func Test_Inventory_WithOneCopyLent_FailsOnInconsistentRecord(t *testing.T) {
	// arrange
	inventory := Inventory{ResourceID: uuid.New(), TotalCopies: 1, AvailableCopies: 5}

	// act
	_, err := inventory.WithOneCopyLent()

	// assert
	assert.ErrorIs(t, err, ErrInvariantViolated)
}

func Test_Inventory_WithOneCopyReturned(t *testing.T) {
	// arrange
	inventory := Inventory{ResourceID: uuid.New(), TotalCopies: 2, AvailableCopies: 1}

	// act
	returned, err := inventory.WithOneCopyReturned()
	_, errBeyondTotal := returned.WithOneCopyReturned()

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, returned.AvailableCopies)
	assert.ErrorIs(t, errBeyondTotal, ErrInvariantViolated)
}
