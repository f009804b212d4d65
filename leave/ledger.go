/*
ledger.go - Append-only balance journal

PURPOSE:
  The ledger is the source of truth for a worker's leave-hours balance.
  Every accrual, deduction, and adjustment is one immutable entry carrying
  the balance that resulted from it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete. Corrections are new entries.
  2. REPLAY CONSISTENCY: BalanceAfter[n] == BalanceAfter[n-1] + Delta[n],
     starting from 0.
  3. O(1) READS: current balance is the BalanceAfter of the latest entry,
     never a recomputed running sum.

WHY STORE BalanceAfter AT ALL?
  A small amount of storage redundancy buys two things: constant-time
  balance reads on the hot path, and tamper evidence - any entry can be
  cross-checked against its predecessor, and Replay verifies the whole
  history in one pass.

CONCURRENCY:
  Appends for the same (user, leaveType) must be serialized or the
  latest-row invariant breaks. That serialization lives in the store
  (memory: mutex, sqlite: mutex + transaction); balance reads never join
  it since they only read the latest snapshot.
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger exposes the balance read path used by the projection engine and
// the append/verify paths used by posting and audit.
type Ledger struct {
	Store LedgerStore
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{Store: store}
}

// CurrentBalance returns the BalanceAfter of the most recent entry for the
// (user, leaveType) key, or zero when the user has no ledger history -
// a valid state, not an error. No side effects.
func (l *Ledger) CurrentBalance(ctx context.Context, orgID, userID, leaveTypeID string) (decimal.Decimal, error) {
	latest, err := l.Store.Latest(ctx, orgID, userID, leaveTypeID)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// Append posts a signed balance change. The store assigns the entry's ID
// and CreatedAt and computes BalanceAfter atomically against the latest
// entry for the same key.
func (l *Ledger) Append(ctx context.Context, entry LedgerEntry) (*LedgerEntry, error) {
	return l.Store.Append(ctx, entry)
}

// Replay re-derives every balance snapshot from 0 and the stored deltas,
// in creation order, and returns a ReplayError naming the first entry
// whose stored BalanceAfter diverges. A clean history returns nil.
func (l *Ledger) Replay(ctx context.Context, orgID, userID, leaveTypeID string) error {
	entries, err := l.Store.Entries(ctx, orgID, userID, leaveTypeID)
	if err != nil {
		return err
	}

	running := decimal.Zero
	for i, e := range entries {
		running = running.Add(e.Delta)
		if !running.Equal(e.BalanceAfter) {
			return &ReplayError{
				EntryID:  e.ID,
				Index:    i,
				Stored:   e.BalanceAfter,
				Replayed: running,
			}
		}
	}
	return nil
}
