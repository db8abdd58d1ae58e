package memengine

import (
	"time"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithLockTimeout limits how long a transaction waits for a lock before failing with admission.ErrContention.
// Zero means waiting until the context is done.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout < 0 {
			return admission.ErrNegativeLockTimeout
		}

		s.lockTimeout = timeout

		return nil
	}
}

// WithInventories seeds the store with the given inventory records.
func WithInventories(inventories ...admission.Inventory) Option {
	return func(s *Store) error {
		for _, inventory := range inventories {
			if err := inventory.Validate(); err != nil {
				return err
			}

			s.inventories[inventory.ResourceID] = inventory
		}

		return nil
	}
}
