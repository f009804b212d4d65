package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/leave-engine/directory"
	"github.com/tablestack/leave-engine/leave"
	"github.com/tablestack/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testOrg    = "org-1"
	testBranch = "branch-1"
)

// fixedNow anchors every projection at March 2026 so month math is
// deterministic regardless of when the suite runs.
var fixedNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*leave.Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	engine := leave.NewEngine(st, st, st, st, st, nil)
	engine.Now = func() time.Time { return fixedNow }
	return engine, st
}

func seedWorker(st *memory.Store) directory.User {
	return st.AddUser(directory.User{
		ID:        "user-1",
		OrgID:     testOrg,
		BranchID:  testBranch,
		FirstName: "Mina",
		LastName:  "Okafor",
	})
}

func seedAnnualLeave(st *memory.Store) leave.LeaveType {
	return st.AddLeaveType(leave.LeaveType{
		ID:       "lt-annual",
		OrgID:    testOrg,
		Name:     "Annual Leave",
		IsActive: true,
	})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func seedBalance(t *testing.T, st *memory.Store, userID, leaveTypeID, hours string) {
	t.Helper()
	_, err := st.Append(context.Background(), leave.LedgerEntry{
		OrgID:       testOrg,
		UserID:      userID,
		LeaveTypeID: leaveTypeID,
		Delta:       dec(hours),
		Reason:      "opening balance",
	})
	require.NoError(t, err)
}

// =============================================================================
// ACCRUAL AND CAP
// =============================================================================

func TestProjection_FixedMonthlyAccrualHitsCap(t *testing.T) {
	// GIVEN: balance 20h, fixed monthly accrual of 2h, cap at 24h
	// WHEN: projecting 3 months
	// THEN: 22, then 24 flagged at cap, then stays pinned at 24

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("2"),
		MaxBalanceHours:   decPtr("24"),
		RoundingPrecision: 2,
		IsActive:          true,
	})
	seedBalance(t, st, "user-1", "lt-annual", "20")

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 3)
	require.NoError(t, err)
	require.Len(t, result.Projections, 3)

	assert.True(t, result.CurrentBalance.Equal(dec("20")))

	march := result.Projections[0]
	assert.Equal(t, 3, march.Month)
	assert.Equal(t, 2026, march.Year)
	assert.Equal(t, "March 2026", march.MonthLabel)
	assert.True(t, march.ProjectedBalance.Equal(dec("22")))
	assert.False(t, march.AtCap)

	april := result.Projections[1]
	assert.True(t, april.ProjectedBalance.Equal(dec("24")), "22 + 2 reaches the cap exactly")
	assert.True(t, april.AtCap, "reaching the cap exactly counts as capped")

	may := result.Projections[2]
	assert.True(t, may.StartingBalance.Equal(dec("24")))
	assert.True(t, may.ProjectedBalance.Equal(dec("24")))
	assert.True(t, may.AtCap)
}

func TestProjection_NoPolicyMeansNoAccrualNoCap(t *testing.T) {
	// GIVEN: a leave type with no active policy and a 10h balance
	// WHEN: projecting forward
	// THEN: the balance stays flat and is never flagged at cap

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	seedBalance(t, st, "user-1", "lt-annual", "10")

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 4)
	require.NoError(t, err)

	for _, m := range result.Projections {
		assert.True(t, m.Accrual.Equal(decimal.Zero))
		assert.True(t, m.ProjectedBalance.Equal(dec("10")))
		assert.False(t, m.AtCap)
	}
}

func TestProjection_HoursWorkedRateAssumesMonthlyHours(t *testing.T) {
	// GIVEN: hours-worked accrual at 0.05 h per hour worked
	// WHEN: projecting a month
	// THEN: accrual is 0.05 * 160 = 8h, the flat monthly assumption

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualHoursWorkedRate,
		AccrualRate:       dec("0.05"),
		RoundingPrecision: 2,
		IsActive:          true,
	})

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 1)
	require.NoError(t, err)
	require.Len(t, result.Projections, 1)
	assert.True(t, result.Projections[0].Accrual.Equal(dec("8")))
	assert.True(t, result.Projections[0].ProjectedBalance.Equal(dec("8")))
}

func TestProjection_AccrualNoneOnlyLedgerMoves(t *testing.T) {
	// GIVEN: an explicit none-method policy with a cap
	// WHEN: projecting
	// THEN: nothing accrues but the cap still applies to the starting balance

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualNone,
		AccrualRate:       dec("2"),
		MaxBalanceHours:   decPtr("30"),
		RoundingPrecision: 2,
		IsActive:          true,
	})
	seedBalance(t, st, "user-1", "lt-annual", "40")

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 1)
	require.NoError(t, err)
	m := result.Projections[0]
	assert.True(t, m.Accrual.Equal(decimal.Zero), "rate is ignored under the none method")
	assert.True(t, m.ProjectedBalance.Equal(dec("30")), "over-cap balance clamps down")
	assert.True(t, m.AtCap)
}

// =============================================================================
// PENDING DEDUCTIONS
// =============================================================================

func TestProjection_PendingRequestDeductsInItsStartMonth(t *testing.T) {
	// GIVEN: balance 5h, accrual 1h/month, an 8h submitted request starting in April
	// WHEN: projecting 3 months from March
	// THEN: March 6, April goes negative (6 + 1 - 8 = -1), May recovers to 0

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("1"),
		RoundingPrecision: 2,
		IsActive:          true,
	})
	seedBalance(t, st, "user-1", "lt-annual", "5")
	st.AddRequest(leave.Request{
		OrgID:       testOrg,
		UserID:      "user-1",
		LeaveTypeID: "lt-annual",
		StartDate:   time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC),
		TotalHours:  dec("8"),
		Status:      leave.StatusSubmitted,
	})

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 3)
	require.NoError(t, err)

	assert.True(t, result.Projections[0].ProjectedBalance.Equal(dec("6")))

	april := result.Projections[1]
	assert.True(t, april.PendingDeductions.Equal(dec("8")))
	assert.True(t, april.ProjectedBalance.Equal(dec("-1")),
		"projections show the shortfall instead of clamping at zero")

	assert.True(t, result.Projections[2].ProjectedBalance.Equal(dec("0")))
}

func TestProjection_OnlyPendingStatusesDeduct(t *testing.T) {
	// GIVEN: one request per status, all starting in March
	// WHEN: projecting March
	// THEN: only submitted and approved_step1 hours are deducted

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	seedBalance(t, st, "user-1", "lt-annual", "100")

	start := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	for _, status := range []leave.RequestStatus{
		leave.StatusDraft, leave.StatusSubmitted, leave.StatusApprovedStep1,
		leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled,
	} {
		st.AddRequest(leave.Request{
			OrgID:       testOrg,
			UserID:      "user-1",
			LeaveTypeID: "lt-annual",
			StartDate:   start,
			TotalHours:  dec("4"),
			Status:      status,
		})
	}

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 1)
	require.NoError(t, err)
	assert.True(t, result.Projections[0].PendingDeductions.Equal(dec("8")),
		"submitted + approved_step1 only")
	assert.True(t, result.Projections[0].ProjectedBalance.Equal(dec("92")))
}

// =============================================================================
// POLICY PRECEDENCE
// =============================================================================

func TestProjection_BranchPolicyBeatsOrgWide(t *testing.T) {
	// GIVEN: an org-wide policy at 2h/month and a branch policy at 5h/month
	// WHEN: projecting for a worker in that branch
	// THEN: the branch policy's rate applies

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("2"),
		RoundingPrecision: 2,
		IsActive:          true,
	})
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		BranchID:          strPtr(testBranch),
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("5"),
		RoundingPrecision: 2,
		IsActive:          true,
	})

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 1)
	require.NoError(t, err)
	assert.True(t, result.Projections[0].Accrual.Equal(dec("5")))
}

func TestProjection_OtherBranchPolicyIsInvisible(t *testing.T) {
	// GIVEN: the only branch policy belongs to a different branch
	// WHEN: projecting for a worker outside it
	// THEN: no policy resolves, so nothing accrues

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		BranchID:          strPtr("branch-other"),
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("5"),
		RoundingPrecision: 2,
		IsActive:          true,
	})

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 1)
	require.NoError(t, err)
	assert.True(t, result.Projections[0].Accrual.Equal(decimal.Zero))
}

// =============================================================================
// ROUNDING AND DETERMINISM
// =============================================================================

func TestProjection_RoundsAtPolicyPrecision(t *testing.T) {
	// GIVEN: a rate with more digits than the policy precision allows
	// WHEN: projecting two months
	// THEN: each month's figures carry the rounded accrual, and month 2
	//       starts from month 1's already-rounded balance

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("1.005"),
		RoundingPrecision: 2,
		IsActive:          true,
	})

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 2)
	require.NoError(t, err)

	// 1.005 rounds half away from zero to 1.01 before the loop runs.
	assert.True(t, result.Projections[0].Accrual.Equal(dec("1.01")))
	assert.True(t, result.Projections[0].ProjectedBalance.Equal(dec("1.01")))
	assert.True(t, result.Projections[1].StartingBalance.Equal(dec("1.01")))
	assert.True(t, result.Projections[1].ProjectedBalance.Equal(dec("2.02")))
}

func TestProjection_DeterministicOverSameState(t *testing.T) {
	// GIVEN: a fixed clock and unchanged stores
	// WHEN: running the same projection twice
	// THEN: the results are identical, month for month

	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddPolicy(leave.Policy{
		OrgID:             testOrg,
		LeaveTypeID:       "lt-annual",
		Method:            leave.AccrualFixedMonthly,
		AccrualRate:       dec("1.25"),
		MaxBalanceHours:   decPtr("100"),
		RoundingPrecision: 2,
		IsActive:          true,
	})
	seedBalance(t, st, "user-1", "lt-annual", "37.5")

	first, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 12)
	require.NoError(t, err)
	second, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 12)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProjection_DefaultHorizonIsTwelveMonths(t *testing.T) {
	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)

	result, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-annual", 0)
	require.NoError(t, err)
	assert.Len(t, result.Projections, leave.DefaultProjectionMonths)
}

// =============================================================================
// NOT-FOUND ERRORS
// =============================================================================

func TestProjection_UnknownUserFails(t *testing.T) {
	engine, st := newTestEngine(t)
	seedAnnualLeave(st)

	_, err := engine.Projection(context.Background(), testOrg, "ghost", "lt-annual", 1)
	assert.ErrorIs(t, err, leave.ErrUserNotFound)
	assert.True(t, leave.IsNotFound(err))
}

func TestProjection_UnknownLeaveTypeFails(t *testing.T) {
	engine, st := newTestEngine(t)
	seedWorker(st)

	_, err := engine.Projection(context.Background(), testOrg, "user-1", "lt-ghost", 1)
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
	assert.True(t, leave.IsNotFound(err))
}

func TestProjection_UserFromAnotherOrgIsInvisible(t *testing.T) {
	// Tenant isolation: the same user ID under a different org must not
	// resolve.
	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)

	_, err := engine.Projection(context.Background(), "org-other", "user-1", "lt-annual", 1)
	assert.ErrorIs(t, err, leave.ErrUserNotFound)
}

// =============================================================================
// ALL-TYPES PROJECTION
// =============================================================================

// failingRequests wraps the memory store and fails Pending for one leave
// type, simulating a partially broken backend.
type failingRequests struct {
	*memory.Store
	failFor string
}

func (f *failingRequests) Pending(ctx context.Context, orgID, userID, leaveTypeID string) ([]leave.Request, error) {
	if leaveTypeID == f.failFor {
		return nil, errors.New("backend unavailable")
	}
	return f.Store.Pending(ctx, orgID, userID, leaveTypeID)
}

func TestAllProjections_SkipsFailingTypeKeepsOthers(t *testing.T) {
	// GIVEN: two active leave types, one of which fails to load requests
	// WHEN: projecting all types
	// THEN: the healthy type is returned, the broken one skipped, no error

	st := memory.New()
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddLeaveType(leave.LeaveType{
		ID:       "lt-sick",
		OrgID:    testOrg,
		Name:     "Sick Leave",
		IsActive: true,
	})

	engine := leave.NewEngine(st, st, st, st, &failingRequests{Store: st, failFor: "lt-sick"}, nil)
	engine.Now = func() time.Time { return fixedNow }

	results, err := engine.AllProjections(context.Background(), testOrg, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lt-annual", results[0].LeaveTypeID)
}

func TestAllProjections_SkipsInactiveTypes(t *testing.T) {
	engine, st := newTestEngine(t)
	seedWorker(st)
	seedAnnualLeave(st)
	st.AddLeaveType(leave.LeaveType{
		ID:       "lt-retired",
		OrgID:    testOrg,
		Name:     "Retired Type",
		IsActive: false,
	})

	results, err := engine.AllProjections(context.Background(), testOrg, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lt-annual", results[0].LeaveTypeID)
}
