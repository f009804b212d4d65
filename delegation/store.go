/*
store.go - Persistence contract for delegate records

Unlike the leave ledger, delegates are plain mutable rows: updates flip
the enabled flag or move the window, and deletion is a hard delete. The
store stays narrow so the Authority can be tested against the in-memory
implementation.
*/
package delegation

import (
	"context"
	"time"
)

// DelegateStore persists ApprovalDelegate records, always org-scoped.
type DelegateStore interface {
	// Insert stores a new record and returns it with the store-assigned
	// ID and CreatedAt.
	Insert(ctx context.Context, d Delegate) (*Delegate, error)

	// Get returns (nil, nil) when the record is absent from the org.
	Get(ctx context.Context, orgID, id string) (*Delegate, error)

	// List returns the org's records ordered by StartAt descending.
	// When activeOnly is set, only records with enabled = true and now
	// within [StartAt, EndAt] are returned.
	List(ctx context.Context, orgID string, activeOnly bool, now time.Time) ([]Delegate, error)

	// Update replaces the stored record matching (OrgID, ID). Returns
	// ErrDelegateNotFound when no such record exists.
	Update(ctx context.Context, d Delegate) (*Delegate, error)

	// Delete hard-deletes the record. Returns ErrDelegateNotFound when no
	// such record exists.
	Delete(ctx context.Context, orgID, id string) error

	// ActiveFor returns the most-recently-started active delegation for
	// delegateUserID whose BranchID is either branchID or nil (org-wide),
	// or (nil, nil) when none is active. Ordering is StartAt descending,
	// so when a branch-specific and an org-wide grant are simultaneously
	// active the more recently started one wins.
	ActiveFor(ctx context.Context, orgID, delegateUserID, branchID string, now time.Time) (*Delegate, error)
}
