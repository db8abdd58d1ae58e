package admission

import "context"

// ConsistencyLevel defines the consistency requirements for read-side Store operations.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary database. This is the default,
	// and everything inside a Store transaction always runs against the primary.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows read-side queries to be served by a replica,
	// e.g. when listing obligations for display.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "admission.consistency_level"

// WithStrongConsistency returns a context that routes read-side queries to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows read-side queries to use a replica.
//
// Example usage:
//
//	ctx = admission.WithEventualConsistency(ctx)
//	obligations, err := e.ListObligations(ctx, actorID)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// If no consistency level is set, it returns StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
