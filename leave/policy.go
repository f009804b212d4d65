/*
policy.go - Effective policy resolution

Given a user's branch and a leave type, at most two active policies can
apply: a branch-specific one and an org-wide fallback (BranchID nil).
The branch-specific one always wins. No active policy at all is a valid
outcome and means "no accrual, unbounded max" to the projection engine.
*/
package leave

import "context"

// Resolver picks the single governing policy for a (leaveType, branch)
// scope.
type Resolver struct {
	Policies PolicyStore
}

func NewResolver(policies PolicyStore) *Resolver {
	return &Resolver{Policies: policies}
}

// Resolve returns the most specific active policy, or nil when none is
// configured.
func (r *Resolver) Resolve(ctx context.Context, orgID, leaveTypeID, branchID string) (*Policy, error) {
	candidates, err := r.Policies.ActiveForScope(ctx, orgID, leaveTypeID, branchID)
	if err != nil {
		return nil, err
	}

	var orgWide *Policy
	for i := range candidates {
		p := &candidates[i]
		if p.BranchID != nil {
			return p, nil
		}
		orgWide = p
	}
	return orgWide, nil
}
