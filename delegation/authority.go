/*
authority.go - The approval delegation service

OPERATIONS:
  Create  - validate the grant, authorize its scope against the actor's
            role tier, verify both users exist in the org, insert enabled
  List    - org's grants, optionally server-side filtered to active ones
  Get / Update / Delete - org-scoped row operations; Update re-validates
            the window on the merged record, Delete is a hard delete
  ActingPrincipal - the authorization check the approval workflow calls:
            who is this user currently standing in for at this branch?

VALIDATION ORDER IN Create:
  input shape -> scope authorization -> user existence -> insert.
  Self-delegation and inverted windows are rejected before anything
  touches persistence.

PRECEDENCE NOTE:
  When a branch-specific and an org-wide grant are simultaneously active
  for the same delegate, ActingPrincipal returns the more recently
  STARTED one, not the more specific one. Scope specificity is not a
  tie-breaker here.
*/
package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tablestack/leave-engine/directory"
)

// Authority manages delegate records and answers stand-in authorization
// queries. Stateless; safe for concurrent use.
type Authority struct {
	Delegates DelegateStore
	Users     directory.UserDirectory

	// Now is injectable for window tests; defaults to time.Now.
	Now func() time.Time

	validate *validator.Validate
}

func NewAuthority(delegates DelegateStore, users directory.UserDirectory) *Authority {
	return &Authority{
		Delegates: delegates,
		Users:     users,
		Now:       time.Now,
		validate:  validator.New(),
	}
}

// Create validates and stores a new delegation grant, enabled from the
// start, and returns it joined with both display names.
func (a *Authority) Create(ctx context.Context, orgID string, in CreateInput, actor Actor) (*View, error) {
	if err := wrapValidator(a.validate.Struct(in)); err != nil {
		return nil, err
	}
	if err := AuthorizeDelegateScope(actor.Level, in.BranchID); err != nil {
		return nil, err
	}

	principal, err := a.requireUser(ctx, orgID, in.PrincipalUserID)
	if err != nil {
		return nil, err
	}
	delegate, err := a.requireUser(ctx, orgID, in.DelegateUserID)
	if err != nil {
		return nil, err
	}

	created, err := a.Delegates.Insert(ctx, Delegate{
		OrgID:           orgID,
		PrincipalUserID: in.PrincipalUserID,
		DelegateUserID:  in.DelegateUserID,
		BranchID:        in.BranchID,
		StartAt:         in.StartAt,
		EndAt:           in.EndAt,
		Enabled:         true,
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Delegate:      *created,
		PrincipalName: principal.DisplayName(),
		DelegateName:  delegate.DisplayName(),
	}, nil
}

// List returns the org's delegation grants joined with display names.
// With ActiveOnly set, the enabled-and-in-window filter runs in the
// store, so the caller never re-filters.
func (a *Authority) List(ctx context.Context, orgID string, opts ListOptions) ([]View, error) {
	records, err := a.Delegates.List(ctx, orgID, opts.ActiveOnly, a.Now())
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(records))
	for _, d := range records {
		v, err := a.toView(ctx, d)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Get returns one grant, failing with ErrDelegateNotFound when it does
// not belong to the org.
func (a *Authority) Get(ctx context.Context, orgID, id string) (*View, error) {
	d, err := a.Delegates.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delegate %s: %w", id, ErrDelegateNotFound)
	}
	v, err := a.toView(ctx, *d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Update applies a partial update, re-validating StartAt < EndAt against
// the merged (existing + incoming) values before anything is written.
func (a *Authority) Update(ctx context.Context, orgID, id string, in UpdateInput) (*View, error) {
	existing, err := a.Delegates.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("delegate %s: %w", id, ErrDelegateNotFound)
	}

	merged := *existing
	if in.BranchID != nil {
		merged.BranchID = in.BranchID
	}
	if in.StartAt != nil {
		merged.StartAt = *in.StartAt
	}
	if in.EndAt != nil {
		merged.EndAt = *in.EndAt
	}
	if in.Enabled != nil {
		merged.Enabled = *in.Enabled
	}

	if !merged.StartAt.Before(merged.EndAt) {
		return nil, &ValidationError{Fields: []FieldError{{Field: "EndAt", Rule: "gtfield"}}}
	}

	updated, err := a.Delegates.Update(ctx, merged)
	if err != nil {
		return nil, err
	}
	v, err := a.toView(ctx, *updated)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Delete hard-deletes a grant, failing with ErrDelegateNotFound when it
// does not belong to the org.
func (a *Authority) Delete(ctx context.Context, orgID, id string) error {
	return a.Delegates.Delete(ctx, orgID, id)
}

// ActingPrincipal answers "who is this user currently allowed to approve
// on behalf of in this branch?". Returns (nil, nil) when no delegation is
// active. When both a branch-specific and an org-wide grant are active,
// the most recently started one wins.
func (a *Authority) ActingPrincipal(ctx context.Context, orgID, delegateUserID, branchID string) (*Principal, error) {
	d, err := a.Delegates.ActiveFor(ctx, orgID, delegateUserID, branchID, a.Now())
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}

	principal := &Principal{ID: d.PrincipalUserID}
	u, err := a.Users.ByID(ctx, orgID, d.PrincipalUserID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		principal.Name = u.DisplayName()
	}
	return principal, nil
}

func (a *Authority) requireUser(ctx context.Context, orgID, userID string) (*directory.User, error) {
	u, err := a.Users.ByID(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, directory.ErrUserNotFound)
	}
	return u, nil
}

// toView joins display names. A user that has since left the directory
// yields an empty name, not an error; storage failures propagate.
func (a *Authority) toView(ctx context.Context, d Delegate) (View, error) {
	v := View{Delegate: d}
	principal, err := a.Users.ByID(ctx, d.OrgID, d.PrincipalUserID)
	if err != nil {
		return View{}, err
	}
	if principal != nil {
		v.PrincipalName = principal.DisplayName()
	}
	delegate, err := a.Users.ByID(ctx, d.OrgID, d.DelegateUserID)
	if err != nil {
		return View{}, err
	}
	if delegate != nil {
		v.DelegateName = delegate.DisplayName()
	}
	return v, nil
}
