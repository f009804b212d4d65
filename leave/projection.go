/*
projection.go - Month-by-month balance forecast

PURPOSE:
  Answers "what will this worker's leave balance look like over the next
  N months?" from three inputs: the current ledger balance, the resolved
  accrual policy, and the pending (not yet approved) requests that will
  eventually deduct hours.

PURITY:
  Projection is a read/compute function with no side effects. Callers
  rely on calling it speculatively - a UI preview must never risk
  mutating financial-equivalent state. It never writes to the ledger.

DETERMINISM:
  Two calls over identical ledger/policy/request state produce identical
  output. The only wall-clock dependence is the current calendar month
  used as the forecast anchor, and that is injectable via Now.

ALGORITHM (per month, anchored at the current calendar month):
  1. starting balance = prior month's rounded projected balance
     (first month: the rounded current ledger balance)
  2. accrual from the policy method (hours-worked uses the flat
     160-hour monthly assumption)
  3. subtract pending deductions for that calendar month (requests are
     grouped by YYYY-MM once, before the loop - not rescanned per month)
  4. clamp to the policy cap, flagging AtCap, when projected >= max
  5. round half away from zero at the policy precision; the rounded
     value seeds the next month

  Negative projected balances are permitted - no floor is applied.

SEE ALSO:
  - ledger.go: the O(1) current-balance read this engine starts from
  - policy.go: branch-over-org policy resolution
*/
package leave

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tablestack/leave-engine/directory"
)

// DefaultProjectionMonths is the forecast horizon when the caller does
// not specify one.
const DefaultProjectionMonths = 12

// MonthProjection is one month of the forecast. Every figure is already
// rounded at the policy precision; consumers never re-round.
type MonthProjection struct {
	Month             int
	Year              int
	MonthLabel        string
	StartingBalance   decimal.Decimal
	Accrual           decimal.Decimal
	PendingDeductions decimal.Decimal
	ProjectedBalance  decimal.Decimal
	AtCap             bool
}

// ProjectionResult is the full forecast for one (user, leaveType) pair.
type ProjectionResult struct {
	UserID         string
	LeaveTypeID    string
	LeaveTypeName  string
	CurrentBalance decimal.Decimal
	Projections    []MonthProjection
}

// Engine computes projections. It is stateless and safe for concurrent
// use; every invocation is an independent read.
type Engine struct {
	Users    directory.UserDirectory
	Types    LeaveTypeStore
	Resolver *Resolver
	Ledger   *Ledger
	Requests RequestStore
	Logger   *slog.Logger

	// Now anchors the forecast at the current calendar month. Injectable
	// for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEngine(
	users directory.UserDirectory,
	types LeaveTypeStore,
	policies PolicyStore,
	ledger LedgerStore,
	requests RequestStore,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Users:    users,
		Types:    types,
		Resolver: NewResolver(policies),
		Ledger:   NewLedger(ledger),
		Requests: requests,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Projection forecasts the user's balance in one leave type for each of
// the next months calendar months (months <= 0 means the default 12).
//
// Fails with ErrUserNotFound or ErrLeaveTypeNotFound when the referenced
// rows do not belong to orgID. Runs in O(months) after a fixed number of
// store reads.
func (e *Engine) Projection(ctx context.Context, orgID, userID, leaveTypeID string, months int) (*ProjectionResult, error) {
	if months <= 0 {
		months = DefaultProjectionMonths
	}

	user, err := e.Users.ByID(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}

	leaveType, err := e.Types.LeaveTypeByID(ctx, orgID, leaveTypeID)
	if err != nil {
		return nil, err
	}
	if leaveType == nil {
		return nil, fmt.Errorf("leave type %s: %w", leaveTypeID, ErrLeaveTypeNotFound)
	}

	policy, err := e.Resolver.Resolve(ctx, orgID, leaveTypeID, user.BranchID)
	if err != nil {
		return nil, err
	}

	current, err := e.Ledger.CurrentBalance(ctx, orgID, userID, leaveTypeID)
	if err != nil {
		return nil, err
	}

	pending, err := e.Requests.Pending(ctx, orgID, userID, leaveTypeID)
	if err != nil {
		return nil, err
	}
	deductionsByMonth := groupPendingByMonth(pending)

	precision := policy.Precision()
	maxBalance := policy.Cap()
	accrual := Round(policy.MonthlyAccrual(), precision)

	result := &ProjectionResult{
		UserID:         userID,
		LeaveTypeID:    leaveTypeID,
		LeaveTypeName:  leaveType.Name,
		CurrentBalance: Round(current, precision),
	}

	now := e.Now()
	cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	starting := result.CurrentBalance

	for i := 0; i < months; i++ {
		deductions := Round(deductionsByMonth[monthKey(cursor)], precision)
		projected := starting.Add(accrual).Sub(deductions)

		atCap := false
		if maxBalance != nil && projected.GreaterThanOrEqual(*maxBalance) {
			atCap = true
			projected = *maxBalance
		}
		projected = Round(projected, precision)

		result.Projections = append(result.Projections, MonthProjection{
			Month:             int(cursor.Month()),
			Year:              cursor.Year(),
			MonthLabel:        monthLabel(cursor),
			StartingBalance:   starting,
			Accrual:           accrual,
			PendingDeductions: deductions,
			ProjectedBalance:  projected,
			AtCap:             atCap,
		})

		starting = projected
		cursor = cursor.AddDate(0, 1, 0)
	}

	return result, nil
}

// AllProjections runs the single-type projection for every active leave
// type in the org. A failure on one type is logged and that type skipped;
// one misconfigured leave type must not block visibility into the others.
func (e *Engine) AllProjections(ctx context.Context, orgID, userID string, months int) ([]ProjectionResult, error) {
	types, err := e.Types.ListActive(ctx, orgID)
	if err != nil {
		return nil, err
	}

	results := make([]ProjectionResult, 0, len(types))
	for _, lt := range types {
		p, err := e.Projection(ctx, orgID, userID, lt.ID, months)
		if err != nil {
			e.Logger.Warn("leave projection skipped",
				"orgId", orgID, "userId", userID, "leaveTypeId", lt.ID, "err", err)
			continue
		}
		results = append(results, *p)
	}
	return results, nil
}

// groupPendingByMonth sums pending request hours by the YYYY-MM of their
// start date. Done once per projection so the monthly loop is a map
// lookup, not a rescan.
func groupPendingByMonth(requests []Request) map[string]decimal.Decimal {
	byMonth := make(map[string]decimal.Decimal, len(requests))
	for _, r := range requests {
		k := monthKey(r.StartDate)
		byMonth[k] = byMonth[k].Add(r.TotalHours)
	}
	return byMonth
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func monthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month(), t.Year())
}
