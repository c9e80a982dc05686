package access

import (
	"context"
	"fmt"
)

// Principal is the authenticated actor requesting an action.
type Principal struct {
	UserID string
	// Role is the account-level role from the auth token. Only
	// super_admin is meaningful here; everything else defers to
	// membership resolution.
	Role Role
}

// NotAMemberError denies an action because no membership entry applies at
// any level of the hierarchy. Recoverable by caller, reported as 403.
type NotAMemberError struct {
	UserID     string
	ResourceID string
}

func (e NotAMemberError) Error() string {
	return fmt.Sprintf("user %s is not a member of %s", e.UserID, e.ResourceID)
}

// ForbiddenError denies an action because the effective role ranks below
// the action's minimum.
type ForbiddenError struct {
	Action Action
	Role   Role
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %q cannot perform %s", e.Role.String(), e.Action)
}

// Gate composes membership resolution with the role table into the
// request-time authorization decision taken before any mutation.
type Gate struct {
	Resolver Resolver
}

func NewGate(store MembershipStore) Gate {
	return Gate{Resolver: Resolver{Store: store}}
}

// Authorize returns nil to allow, or a typed deny error. super_admin
// bypasses organization-scoped checks entirely; a task's assignee keeps
// member-equivalent rights on their own task's step advancement even
// without a workspace entry.
func (g Gate) Authorize(ctx context.Context, p Principal, action Action, resourceID string, kind ResourceKind) error {
	if p.Role == RoleSuperAdmin && action != ActionStepReview {
		return nil
	}
	if action == ActionStepAdvance && kind == KindTask {
		assignee, err := g.Resolver.Store.TaskAssignee(ctx, resourceID)
		if err == nil && assignee != "" && assignee == p.UserID {
			return nil
		}
	}
	m, ok, err := g.Resolver.Resolve(ctx, p.UserID, resourceID, kind)
	if err != nil {
		return err
	}
	if !ok {
		return NotAMemberError{UserID: p.UserID, ResourceID: resourceID}
	}
	if action == ActionStepReview {
		if !CanReview(m.Role) {
			return ForbiddenError{Action: action, Role: m.Role}
		}
		return nil
	}
	if !CanPerform(m.Role, action) {
		return ForbiddenError{Action: action, Role: m.Role}
	}
	return nil
}
