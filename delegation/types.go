/*
Package delegation manages time-boxed approval stand-ins: a grant letting
one manager approve leave requests on behalf of an absent principal.

PURPOSE:
  The approval workflow asks one question of this package: "who, if
  anyone, is this user currently allowed to approve on behalf of in this
  branch?" Everything else here - CRUD, validation, role-scope
  authorization - exists to keep the answer to that question trustworthy.

ACTIVE STATE IS TWO INDEPENDENT AXES, NOT A STATE MACHINE:
  - enabled: an explicit flag, toggled off by update, never auto-reverts
  - temporal window: purely a function of now vs [StartAt, EndAt]
  A delegate is usable for approval iff enabled AND now is inside the
  window.

SEE ALSO:
  - authority.go: the service implementing the operations
  - rolepolicy.go: who may create org-wide grants
*/
package delegation

import "time"

// Delegate is a time-boxed grant letting DelegateUserID approve on behalf
// of PrincipalUserID.
type Delegate struct {
	ID              string
	OrgID           string
	PrincipalUserID string
	DelegateUserID  string

	// BranchID scopes the grant to one branch. nil = org-wide; org-wide
	// grants may only be created by the top role tier.
	BranchID *string

	StartAt   time.Time
	EndAt     time.Time
	Enabled   bool
	CreatedAt time.Time
}

// ActiveAt reports whether the grant is usable for approval at the given
// instant: enabled and now within [StartAt, EndAt] inclusive.
func (d Delegate) ActiveAt(now time.Time) bool {
	return d.Enabled && !now.Before(d.StartAt) && !now.After(d.EndAt)
}

// View is a Delegate joined with the principal's and delegate's display
// names, the shape returned to callers.
type View struct {
	Delegate
	PrincipalName string
	DelegateName  string
}

// Principal identifies who a delegate is currently standing in for.
type Principal struct {
	ID   string
	Name string
}

// CreateInput is the payload for Authority.Create. Cross-field rules are
// enforced by validator tags: the delegate cannot be the principal, and
// the window must be non-empty.
type CreateInput struct {
	PrincipalUserID string    `validate:"required"`
	DelegateUserID  string    `validate:"required,nefield=PrincipalUserID"`
	BranchID        *string   `validate:"omitempty"`
	StartAt         time.Time `validate:"required"`
	EndAt           time.Time `validate:"required,gtfield=StartAt"`
}

// UpdateInput is a partial update; nil fields keep the stored value.
// StartAt/EndAt are re-validated against the merged record.
type UpdateInput struct {
	BranchID *string
	StartAt  *time.Time
	EndAt    *time.Time
	Enabled  *bool
}

// ListOptions filters Authority.List. ActiveOnly pushes the
// enabled-and-in-window filter into the store so callers never re-filter.
type ListOptions struct {
	ActiveOnly bool
}

// Actor is the user performing a delegation operation, reduced to what
// the authorization policy needs.
type Actor struct {
	UserID string
	Level  RoleLevel
}
