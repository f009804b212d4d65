/*
Package memory provides an in-memory implementation of every persistence
contract in the leave and delegation cores, plus the user directory.

Used by tests and development seeding. Thread-safe; ledger appends are
serialized by the store mutex so the latest-row invariant holds under
concurrent posting. Sorted-slice ordering stands in for the SQL ORDER BY
clauses of the sqlite store.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tablestack/leave-engine/delegation"
	"github.com/tablestack/leave-engine/directory"
	"github.com/tablestack/leave-engine/leave"
)

type userKey struct{ orgID, id string }
type typeKey struct{ orgID, id string }
type ledgerKey struct{ orgID, userID, leaveTypeID string }

// Store holds all state behind one RWMutex.
type Store struct {
	mu         sync.RWMutex
	users      map[userKey]directory.User
	leaveTypes map[typeKey]leave.LeaveType
	policies   []leave.Policy
	ledger     map[ledgerKey][]leave.LedgerEntry
	requests   []leave.Request
	delegates  map[string]delegation.Delegate
	seq        int64
}

func New() *Store {
	return &Store{
		users:      make(map[userKey]directory.User),
		leaveTypes: make(map[typeKey]leave.LeaveType),
		ledger:     make(map[ledgerKey][]leave.LedgerEntry),
		delegates:  make(map[string]delegation.Delegate),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

// AddUser seeds a directory user, assigning an ID when absent.
func (s *Store) AddUser(u directory.User) directory.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[userKey{u.OrgID, u.ID}] = u
	return u
}

// AddLeaveType seeds a leave type, assigning an ID when absent.
func (s *Store) AddLeaveType(lt leave.LeaveType) leave.LeaveType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lt.ID == "" {
		lt.ID = uuid.NewString()
	}
	s.leaveTypes[typeKey{lt.OrgID, lt.ID}] = lt
	return lt
}

// AddPolicy seeds an accrual policy, assigning an ID when absent.
func (s *Store) AddPolicy(p leave.Policy) leave.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.policies = append(s.policies, p)
	return p
}

// AddRequest seeds a leave request, assigning an ID when absent.
func (s *Store) AddRequest(r leave.Request) leave.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.requests = append(s.requests, r)
	return r
}

// =============================================================================
// USER DIRECTORY (directory.UserDirectory)
// =============================================================================

func (s *Store) ByID(_ context.Context, orgID, userID string) (*directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userKey{orgID, userID}]; ok {
		return &u, nil
	}
	return nil, nil
}

// =============================================================================
// LEAVE TYPE STORE (leave.LeaveTypeStore)
// =============================================================================

func (s *Store) LeaveTypeByID(_ context.Context, orgID, leaveTypeID string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lt, ok := s.leaveTypes[typeKey{orgID, leaveTypeID}]; ok {
		return &lt, nil
	}
	return nil, nil
}

func (s *Store) ListActive(_ context.Context, orgID string) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var types []leave.LeaveType
	for _, lt := range s.leaveTypes {
		if lt.OrgID == orgID && lt.IsActive {
			types = append(types, lt)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

// =============================================================================
// POLICY STORE (leave.PolicyStore)
// =============================================================================

func (s *Store) ActiveForScope(_ context.Context, orgID, leaveTypeID, branchID string) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []leave.Policy
	for _, p := range s.policies {
		if p.OrgID != orgID || p.LeaveTypeID != leaveTypeID || !p.IsActive {
			continue
		}
		if p.BranchID == nil || *p.BranchID == branchID {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// =============================================================================
// LEDGER STORE (leave.LedgerStore) - append-only
// =============================================================================

// Append computes BalanceAfter against the key's latest entry under the
// store lock, which serializes concurrent appends per key.
func (s *Store) Append(_ context.Context, entry leave.LedgerEntry) (*leave.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := ledgerKey{entry.OrgID, entry.UserID, entry.LeaveTypeID}
	prev := decimal.Zero
	if existing := s.ledger[k]; len(existing) > 0 {
		prev = existing[len(existing)-1].BalanceAfter
	}

	entry.ID = uuid.NewString()
	entry.BalanceAfter = prev.Add(entry.Delta)
	entry.CreatedAt = s.tick()
	s.ledger[k] = append(s.ledger[k], entry)

	return &entry, nil
}

func (s *Store) Latest(_ context.Context, orgID, userID, leaveTypeID string) (*leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[ledgerKey{orgID, userID, leaveTypeID}]
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

func (s *Store) Entries(_ context.Context, orgID, userID, leaveTypeID string) ([]leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[ledgerKey{orgID, userID, leaveTypeID}]
	out := make([]leave.LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// =============================================================================
// REQUEST STORE (leave.RequestStore)
// =============================================================================

func (s *Store) Pending(_ context.Context, orgID, userID, leaveTypeID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []leave.Request
	for _, r := range s.requests {
		if r.OrgID == orgID && r.UserID == userID && r.LeaveTypeID == leaveTypeID && r.IsPending() {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// =============================================================================
// DELEGATE STORE (delegation.DelegateStore)
// =============================================================================

func (s *Store) Insert(_ context.Context, d delegation.Delegate) (*delegation.Delegate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = uuid.NewString()
	d.CreatedAt = s.tick()
	s.delegates[d.ID] = d
	return &d, nil
}

func (s *Store) Get(_ context.Context, orgID, id string) (*delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.delegates[id]; ok && d.OrgID == orgID {
		return &d, nil
	}
	return nil, nil
}

func (s *Store) List(_ context.Context, orgID string, activeOnly bool, now time.Time) ([]delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []delegation.Delegate
	for _, d := range s.delegates {
		if d.OrgID != orgID {
			continue
		}
		if activeOnly && !d.ActiveAt(now) {
			continue
		}
		out = append(out, d)
	}
	sortByStartDesc(out)
	return out, nil
}

func (s *Store) Update(_ context.Context, d delegation.Delegate) (*delegation.Delegate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.delegates[d.ID]
	if !ok || existing.OrgID != d.OrgID {
		return nil, fmt.Errorf("delegate %s: %w", d.ID, delegation.ErrDelegateNotFound)
	}
	d.CreatedAt = existing.CreatedAt
	s.delegates[d.ID] = d
	return &d, nil
}

func (s *Store) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.delegates[id]
	if !ok || existing.OrgID != orgID {
		return fmt.Errorf("delegate %s: %w", id, delegation.ErrDelegateNotFound)
	}
	delete(s.delegates, id)
	return nil
}

func (s *Store) ActiveFor(_ context.Context, orgID, delegateUserID, branchID string, now time.Time) (*delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []delegation.Delegate
	for _, d := range s.delegates {
		if d.OrgID != orgID || d.DelegateUserID != delegateUserID {
			continue
		}
		if !d.ActiveAt(now) {
			continue
		}
		if d.BranchID != nil && *d.BranchID != branchID {
			continue
		}
		matches = append(matches, d)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sortByStartDesc(matches)
	return &matches[0], nil
}

// sortByStartDesc orders by StartAt descending, CreatedAt descending as
// the tie-breaker, matching the sqlite ORDER BY.
func sortByStartDesc(ds []delegation.Delegate) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].StartAt.Equal(ds[j].StartAt) {
			return ds[i].StartAt.After(ds[j].StartAt)
		}
		return ds[i].CreatedAt.After(ds[j].CreatedAt)
	})
}

// tick returns a strictly increasing timestamp so creation order is
// unambiguous even within one wall-clock nanosecond.
func (s *Store) tick() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq))
}
