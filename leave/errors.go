/*
errors.go - Sentinel errors for the leave core

ERROR CATEGORIES:
  1. Not-found - referenced user or leave type outside the caller's org.
     Always raised by an explicit existence check, never inferred from a
     nil dereference downstream.
  2. Ledger consistency - a stored balance snapshot disagrees with the
     replayed deltas (corruption, never a caller mistake).

Storage-layer failures are not translated here; they propagate unchanged.
Retry and circuit-breaking policy belongs to infrastructure, not to this
package.
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tablestack/leave-engine/directory"
)

var (
	// ErrUserNotFound aliases the directory sentinel so callers of this
	// package only branch on leave errors.
	ErrUserNotFound = directory.ErrUserNotFound

	// ErrLeaveTypeNotFound is returned when the leave type does not exist
	// within the organization.
	ErrLeaveTypeNotFound = errors.New("leave type not found in organization")

	// ErrLedgerInconsistent is returned by replay verification when a
	// stored BalanceAfter diverges from the running sum of deltas.
	ErrLedgerInconsistent = errors.New("ledger balance snapshot inconsistent with deltas")
)

// IsNotFound reports whether the error indicates a missing org-scoped row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrLeaveTypeNotFound)
}

// ReplayError names the first entry whose stored snapshot diverges from
// the replayed running balance.
type ReplayError struct {
	EntryID  string
	Index    int
	Stored   decimal.Decimal
	Replayed decimal.Decimal
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("ledger entry %s (index %d): stored balance %s, replayed %s",
		e.EntryID, e.Index, e.Stored, e.Replayed)
}

func (e *ReplayError) Unwrap() error { return ErrLedgerInconsistent }
