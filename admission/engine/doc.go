// Package engine implements the loan admission engine on top of an admission.Store.
//
// RequestLoan performs the whole eligibility check and the inventory decrement inside one
// store transaction that holds an exclusive lock on the inventory record, so concurrent
// requests for the last copy are serialized and at most one of them succeeds.
// The engine never retries; callers decide what to do with admission.ErrContention
// (see package retry).
//
// Observability follows the same optional, dependency-free pattern as the stores:
// WithLogger / WithContextualLogger, WithMetrics and WithTracing.
package engine
