/*
Package leave implements the workforce leave accounting core: the
append-only balance ledger, policy resolution, and the projection engine.

PURPOSE:
  This package is the one place in the platform that must guarantee
  deterministic, auditable numeric state over time. Every hour of leave
  a worker accrues or spends flows through the ledger here, and every
  forward-looking balance a manager sees comes out of the projection
  engine here.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: a kind of leave an organization recognizes (Annual, Sick)
  - Policy: accrual/cap rules for an (org, leaveType) pair, optionally
    narrowed to one branch
  - LedgerEntry: one immutable balance change with its resulting balance
  - Request: a worker's not-necessarily-approved claim on future hours

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never edited, only appended
  2. Precision: decimal.Decimal everywhere, never float64
  3. Tenant isolation: every value carries its OrgID and every query is
     scoped by it
  4. Purity: projections read, compute, and return - they never write

SEE ALSO:
  - ledger.go: append/read semantics and the replay invariant
  - policy.go: branch-over-org policy resolution
  - projection.go: the month-by-month forecast engine
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPE - One row per kind of leave an org recognizes
// =============================================================================

// LeaveType is soft-disabled, never hard-deleted: historical ledger
// entries must stay interpretable.
type LeaveType struct {
	ID       string
	OrgID    string
	Name     string
	IsActive bool
}

// =============================================================================
// POLICY - Accrual and cap rules for an (org, leaveType) scope
// =============================================================================

// AccrualMethod determines how a balance grows month over month.
type AccrualMethod string

const (
	// AccrualNone: the balance only changes through explicit ledger entries.
	AccrualNone AccrualMethod = "none"

	// AccrualFixedMonthly: AccrualRate hours credited flat every month.
	AccrualFixedMonthly AccrualMethod = "fixed_monthly"

	// AccrualHoursWorkedRate: AccrualRate hours credited per hour worked.
	// Forward projections assume AssumedMonthlyWorkedHours per month since
	// future schedules are unknown.
	AccrualHoursWorkedRate AccrualMethod = "hours_worked_rate"
)

// AssumedMonthlyWorkedHours is the flat monthly hours assumption used when
// projecting hours-worked accrual. The engine has no access to future
// schedules, so this is a documented approximation, not a contract.
const AssumedMonthlyWorkedHours = 160

// DefaultPrecision is the decimal precision applied when no policy is
// configured for a leave type.
const DefaultPrecision int32 = 2

// Policy is the accrual/cap rule set governing one leave type, either
// org-wide (BranchID nil) or for a single branch. Multiple historical
// policies may exist per scope; only one is active at a time.
type Policy struct {
	ID          string
	OrgID       string
	LeaveTypeID string

	// BranchID narrows the policy to one branch. nil = org-wide fallback.
	// An active branch-specific policy always beats an active org-wide
	// policy for the same leave type.
	BranchID *string

	Method      AccrualMethod
	AccrualRate decimal.Decimal

	// MaxBalanceHours caps the projected balance. nil = unbounded.
	MaxBalanceHours *decimal.Decimal

	// RoundingPrecision is the number of decimal places every projected
	// figure is rounded to.
	RoundingPrecision int32

	IsActive bool
}

// MonthlyAccrual returns the hours this policy credits in one projected
// month. A nil policy receiver accrues nothing (no policy configured is a
// valid state, not an error).
func (p *Policy) MonthlyAccrual() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	switch p.Method {
	case AccrualFixedMonthly:
		return p.AccrualRate
	case AccrualHoursWorkedRate:
		return p.AccrualRate.Mul(decimal.NewFromInt(AssumedMonthlyWorkedHours))
	default:
		return decimal.Zero
	}
}

// Precision returns the rounding precision, falling back to
// DefaultPrecision when no policy is configured.
func (p *Policy) Precision() int32 {
	if p == nil {
		return DefaultPrecision
	}
	return p.RoundingPrecision
}

// Cap returns the max-balance constraint, nil when unbounded (including
// the no-policy case).
func (p *Policy) Cap() *decimal.Decimal {
	if p == nil {
		return nil
	}
	return p.MaxBalanceHours
}

// =============================================================================
// LEDGER ENTRY - One immutable balance change with its resulting balance
// =============================================================================

// LedgerEntry records a signed balance change (positive = accrual/credit,
// negative = deduction) together with the balance immediately after it.
//
// BalanceAfter is denormalized on purpose: it makes the current balance an
// O(1) latest-row lookup and lets any entry be cross-checked against its
// predecessor (BalanceAfter[n] == BalanceAfter[n-1] + Delta[n]).
type LedgerEntry struct {
	ID          string
	OrgID       string
	UserID      string
	LeaveTypeID string
	Delta       decimal.Decimal
	BalanceAfter decimal.Decimal
	Reason      string
	CreatedAt   time.Time
}

// =============================================================================
// LEAVE REQUEST - A worker's claim on future hours
// =============================================================================

type RequestStatus string

const (
	StatusDraft         RequestStatus = "draft"
	StatusSubmitted     RequestStatus = "submitted"
	StatusApprovedStep1 RequestStatus = "approved_step1"
	StatusApproved      RequestStatus = "approved"
	StatusRejected      RequestStatus = "rejected"
	StatusCancelled     RequestStatus = "cancelled"
)

// Request is a worker's leave request. Only submitted and approved_step1
// requests represent pending deductions not yet posted to the ledger;
// approved requests are expected to have a ledger entry already.
type Request struct {
	ID          string
	OrgID       string
	UserID      string
	LeaveTypeID string
	StartDate   time.Time
	TotalHours  decimal.Decimal
	Status      RequestStatus
}

// IsPending reports whether the request still represents an unposted
// balance deduction.
func (r Request) IsPending() bool {
	return r.Status == StatusSubmitted || r.Status == StatusApprovedStep1
}

// PendingStatuses are the statuses the request store filters by when
// loading pending deductions.
var PendingStatuses = []RequestStatus{StatusSubmitted, StatusApprovedStep1}

// =============================================================================
// ROUNDING
// =============================================================================

// Round rounds half away from zero at the given precision. Applied
// consistently to every projected figure so two computations over the same
// state are byte-identical; rounding an already-rounded value is a no-op.
func Round(v decimal.Decimal, precision int32) decimal.Decimal {
	return v.Round(precision)
}
