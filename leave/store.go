/*
store.go - Narrow persistence contracts for the leave core

PURPOSE:
  The ledger, policy resolver and projection engine never touch a
  database directly; they consume these query-by-key interfaces. That
  keeps the engine's determinism testable against in-memory fakes and
  leaves the SQL dialect to store implementations.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and development
  - store/sqlite: SQLite, for production single-node deployments

APPEND-ONLY CONTRACT:
  LedgerStore has Append and reads. No Update, no Delete. Corrections are
  new entries.
*/
package leave

import "context"

// LeaveTypeStore looks up leave type definitions, always org-scoped.
type LeaveTypeStore interface {
	// LeaveTypeByID returns (nil, nil) when the leave type is absent from
	// the org.
	LeaveTypeByID(ctx context.Context, orgID, leaveTypeID string) (*LeaveType, error)

	// ListActive returns the org's active leave types, ordered by name.
	ListActive(ctx context.Context, orgID string) ([]LeaveType, error)
}

// PolicyStore queries active accrual policies.
type PolicyStore interface {
	// ActiveForScope returns the active policies for (orgID, leaveTypeID)
	// whose BranchID is either nil (org-wide) or equal to branchID.
	// At most one of each can be active, so the result has 0-2 elements.
	ActiveForScope(ctx context.Context, orgID, leaveTypeID, branchID string) ([]Policy, error)
}

// LedgerStore persists the append-only balance journal.
//
// Append computes BalanceAfter from the latest entry for the same
// (orgID, userID, leaveTypeID) key and MUST serialize concurrent appends
// per key (lock or transaction) so the "latest row = current balance"
// invariant holds. The returned entry carries the store-assigned ID,
// BalanceAfter and CreatedAt.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) (*LedgerEntry, error)

	// Latest returns the most recently created entry for the key, or
	// (nil, nil) when the user has no history for this leave type.
	Latest(ctx context.Context, orgID, userID, leaveTypeID string) (*LedgerEntry, error)

	// Entries returns the full history for the key in creation order.
	// Used for replay verification and audit, never for balance reads.
	Entries(ctx context.Context, orgID, userID, leaveTypeID string) ([]LedgerEntry, error)
}

// RequestStore queries leave requests.
type RequestStore interface {
	// Pending returns the user's submitted and approved_step1 requests for
	// the leave type - the deductions not yet reflected in the ledger.
	Pending(ctx context.Context, orgID, userID, leaveTypeID string) ([]Request, error)
}
