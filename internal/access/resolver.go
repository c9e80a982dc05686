package access

import "context"

// ResourceKind identifies a level of the org -> workspace -> task hierarchy.
type ResourceKind string

const (
	KindOrganization ResourceKind = "organization"
	KindWorkspace    ResourceKind = "workspace"
	KindTask         ResourceKind = "task"
)

// MembershipStore is the persistence surface the resolver reads from.
// Implemented by repo.Repo.
type MembershipStore interface {
	OrgRole(ctx context.Context, orgID, userID string) (string, bool, error)
	WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, bool, error)
	WorkspaceOrg(ctx context.Context, workspaceID string) (string, error)
	TaskWorkspace(ctx context.Context, taskID string) (string, error)
	TaskAssignee(ctx context.Context, taskID string) (string, error)
}

// Membership is the resolved (user, resource, effective role) triple. It is
// computed per request and never persisted: org-level roles cascade, so a
// cached copy would go stale the moment a membership row changes.
type Membership struct {
	UserID     string
	ResourceID string
	Role       Role
	Inherited  bool
}

type Resolver struct {
	Store MembershipStore
}

// Resolve walks the hierarchy for the closest membership entry. Workspace
// and task lookups fall back to the parent organization, but only an org
// role of admin or above grants implicit authority below its own level.
// The second return is false when no applicable entry exists; callers
// treat that as deny, not as a fault.
func (r Resolver) Resolve(ctx context.Context, userID, resourceID string, kind ResourceKind) (Membership, bool, error) {
	switch kind {
	case KindOrganization:
		return r.orgMembership(ctx, userID, resourceID)
	case KindWorkspace:
		return r.workspaceMembership(ctx, userID, resourceID)
	case KindTask:
		workspaceID, err := r.Store.TaskWorkspace(ctx, resourceID)
		if err != nil {
			return Membership{}, false, err
		}
		m, ok, err := r.workspaceMembership(ctx, userID, workspaceID)
		if err != nil || !ok {
			return Membership{}, false, err
		}
		m.ResourceID = resourceID
		return m, true, nil
	}
	return Membership{}, false, nil
}

func (r Resolver) orgMembership(ctx context.Context, userID, orgID string) (Membership, bool, error) {
	roleStr, ok, err := r.Store.OrgRole(ctx, orgID, userID)
	if err != nil || !ok {
		return Membership{}, false, err
	}
	return Membership{UserID: userID, ResourceID: orgID, Role: ParseRole(roleStr)}, true, nil
}

func (r Resolver) workspaceMembership(ctx context.Context, userID, workspaceID string) (Membership, bool, error) {
	roleStr, ok, err := r.Store.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return Membership{}, false, err
	}
	if ok {
		return Membership{UserID: userID, ResourceID: workspaceID, Role: ParseRole(roleStr)}, true, nil
	}
	orgID, err := r.Store.WorkspaceOrg(ctx, workspaceID)
	if err != nil {
		return Membership{}, false, err
	}
	orgM, ok, err := r.orgMembership(ctx, userID, orgID)
	if err != nil || !ok {
		return Membership{}, false, err
	}
	// Only admin standing at the org level reaches down into workspaces.
	if !orgM.Role.AtLeast(RoleAdmin) {
		return Membership{}, false, nil
	}
	return Membership{UserID: userID, ResourceID: workspaceID, Role: orgM.Role, Inherited: true}, true, nil
}
