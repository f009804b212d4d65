/*
rolepolicy.go - Role-scope authorization for delegation management

The authorization question is deliberately a pure function of (role tier,
requested scope) so it can be tested without any role-management
machinery. Delegation CRUD is available to branch managers and above;
org-wide grants - which bypass branch scoping entirely - are reserved for
the owner tier.
*/
package delegation

// RoleLevel is an ordered role tier. Higher outranks lower.
type RoleLevel int

const (
	RoleStaff         RoleLevel = 1
	RoleShiftLead     RoleLevel = 2
	RoleBranchManager RoleLevel = 3
	RoleOrgAdmin      RoleLevel = 4
	RoleOwner         RoleLevel = 5
)

// AuthorizeDelegateScope decides whether an actor at the given tier may
// create or edit a delegation with the given scope. A nil branchID is an
// org-wide grant and requires the top tier.
func AuthorizeDelegateScope(actor RoleLevel, branchID *string) error {
	if branchID == nil && actor < RoleOwner {
		return ErrScopeForbidden
	}
	return nil
}
