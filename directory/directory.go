/*
Package directory defines the user directory contract consumed by the
leave and delegation cores.

PURPOSE:
  Both cores need to answer "does this user exist in this organization,
  and what branch do they work at?" without owning user management.
  The directory is modeled as a narrow read interface so the cores can
  be tested against in-memory fakes.

TENANT SCOPING:
  Every lookup is keyed by (orgID, userID). A user that exists in another
  organization is indistinguishable from a user that does not exist at
  all - lookups outside the caller's org return nothing.
*/
package directory

import (
	"context"
	"errors"
)

// ErrUserNotFound is the shared sentinel for "no such user in this
// organization", raised by callers after an explicit ByID miss.
var ErrUserNotFound = errors.New("user not found in organization")

// User is the minimal worker record the leave cores need.
type User struct {
	ID        string
	OrgID     string
	BranchID  string
	FirstName string
	LastName  string
}

// DisplayName returns the human-readable name used in joined results.
func (u User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserDirectory is a read-only lookup keyed by (orgID, userID).
//
// ByID returns (nil, nil) when no user matches within the organization;
// absence is reported by the caller, never inferred from a nil deref.
type UserDirectory interface {
	ByID(ctx context.Context, orgID, userID string) (*User, error)
}
