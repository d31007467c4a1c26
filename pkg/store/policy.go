package store

// FailurePolicy decides what happens to optimistic state when the remote
// half of a mutation fails.
type FailurePolicy int

const (
	// RetainOnFailure keeps the optimistic change as the final local state.
	// Work created offline or during an outage is never lost.
	RetainOnFailure FailurePolicy = iota

	// RollbackOnFailure undoes the optimistic change when the remote call fails.
	RollbackOnFailure
)

// String returns the policy name used in logs.
func (p FailurePolicy) String() string {
	switch p {
	case RetainOnFailure:
		return "retain"
	case RollbackOnFailure:
		return "rollback"
	default:
		return "unknown"
	}
}
