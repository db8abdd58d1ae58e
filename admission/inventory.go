package admission

import (
	"fmt"

	"github.com/google/uuid"
)

// Inventory holds the copy counts of one loanable resource.
// AvailableCopies changes only inside a transaction that also creates or closes exactly one Obligation.
type Inventory struct {
	ResourceID      uuid.UUID `json:"resourceId"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
}

// BuildInventory creates an Inventory with all copies available.
func BuildInventory(resourceID uuid.UUID, totalCopies int) Inventory {
	return Inventory{
		ResourceID:      resourceID,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}
}

// Validate checks 0 <= AvailableCopies <= TotalCopies.
func (i Inventory) Validate() error {
	if i.TotalCopies < 0 || i.AvailableCopies < 0 || i.AvailableCopies > i.TotalCopies {
		return fmt.Errorf(
			"%w: resource %s has %d of %d copies available",
			ErrInvariantViolated, i.ResourceID, i.AvailableCopies, i.TotalCopies,
		)
	}

	return nil
}

// HasAvailableCopies reports whether at least one copy can be lent.
func (i Inventory) HasAvailableCopies() bool {
	return i.AvailableCopies > 0
}

// WithOneCopyLent returns the Inventory after lending one copy.
func (i Inventory) WithOneCopyLent() (Inventory, error) {
	if err := i.Validate(); err != nil {
		return i, err
	}

	if !i.HasAvailableCopies() {
		return i, fmt.Errorf("%w: resource %s", ErrResourceUnavailable, i.ResourceID)
	}

	i.AvailableCopies--

	return i, nil
}

// WithOneCopyReturned returns the Inventory after one copy came back.
func (i Inventory) WithOneCopyReturned() (Inventory, error) {
	i.AvailableCopies++

	if err := i.Validate(); err != nil {
		return i, err
	}

	return i, nil
}
