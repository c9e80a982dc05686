package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"taskbase/internal/access"
	"taskbase/internal/domain"
	"taskbase/internal/events"
	"taskbase/internal/repo"
)

func (e Engine) ListWorkspaces(ctx context.Context, p access.Principal, orgID string) ([]domain.Workspace, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgView, orgID, access.KindOrganization); err != nil {
		return nil, err
	}
	return e.Repo.ListWorkspaces(ctx, orgID)
}

func (e Engine) CreateWorkspace(ctx context.Context, p access.Principal, orgID, name, description string) (domain.Workspace, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceCreate, orgID, access.KindOrganization); err != nil {
		return domain.Workspace{}, err
	}
	if name == "" {
		return domain.Workspace{}, errors.New("workspace name is required")
	}
	now := e.nowStr()
	w := domain.Workspace{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, err
	}
	// The creator joins as workspace admin so the new workspace is never
	// orphaned even if org memberships later change.
	creator := domain.WorkspaceMember{WorkspaceID: w.ID, UserID: p.UserID, Role: "admin", JoinedAt: now}
	if err := e.Repo.UpsertWorkspaceMember(ctx, tx, creator); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Events.Append(ctx, tx, "workspace.created", orgID, "workspace", w.ID, p.UserID,
		events.EventPayload{"name": w.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	w.Members = []domain.WorkspaceMember{creator}
	return w, nil
}

func (e Engine) GetWorkspace(ctx context.Context, p access.Principal, workspaceID string) (domain.Workspace, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceView, workspaceID, access.KindWorkspace); err != nil {
		return domain.Workspace{}, err
	}
	return e.Repo.GetWorkspace(ctx, workspaceID)
}

func (e Engine) UpdateWorkspace(ctx context.Context, p access.Principal, workspaceID, name, description string) (domain.Workspace, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceUpdate, workspaceID, access.KindWorkspace); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Repo.UpdateWorkspace(ctx, workspaceID, name, description); err != nil {
		return domain.Workspace{}, err
	}
	return e.Repo.GetWorkspace(ctx, workspaceID)
}

// DeleteWorkspace removes a workspace and everything under it. Tasks,
// steps and comments go with it in one transaction.
func (e Engine) DeleteWorkspace(ctx context.Context, p access.Principal, workspaceID string) error {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceDelete, workspaceID, access.KindWorkspace); err != nil {
		return err
	}
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorkspace(ctx, tx, workspaceID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "workspace.deleted", w.OrgID, "workspace", workspaceID, p.UserID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AddWorkspaceMember grants a workspace role. The user must already be a
// member of the owning organization.
func (e Engine) AddWorkspaceMember(ctx context.Context, p access.Principal, workspaceID, userID, role string) (domain.WorkspaceMember, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceManageMembers, workspaceID, access.KindWorkspace); err != nil {
		return domain.WorkspaceMember{}, err
	}
	r := access.ParseRole(role)
	if r == access.RoleNone || r == access.RoleSuperAdmin {
		return domain.WorkspaceMember{}, errors.New("role must be member, manager or admin")
	}
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	_, inOrg, err := e.Repo.OrgRole(ctx, w.OrgID, userID)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	if !inOrg {
		return domain.WorkspaceMember{}, errors.New("user is not a member of the organization")
	}
	m := domain.WorkspaceMember{WorkspaceID: workspaceID, UserID: userID, Role: role, JoinedAt: e.nowStr()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertWorkspaceMember(ctx, tx, m); err != nil {
		return domain.WorkspaceMember{}, err
	}
	if err := e.Events.Append(ctx, tx, "workspace.member_added", w.OrgID, "workspace", workspaceID, p.UserID,
		events.EventPayload{"user_id": userID, "role": role}); err != nil {
		return domain.WorkspaceMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkspaceMember{}, err
	}
	return m, nil
}

// UpdateWorkspaceMemberRole changes the role of an existing workspace
// member. Unlike AddWorkspaceMember it refuses to create the membership.
func (e Engine) UpdateWorkspaceMemberRole(ctx context.Context, p access.Principal, workspaceID, userID, role string) (domain.WorkspaceMember, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceManageMembers, workspaceID, access.KindWorkspace); err != nil {
		return domain.WorkspaceMember{}, err
	}
	r := access.ParseRole(role)
	if r == access.RoleNone || r == access.RoleSuperAdmin {
		return domain.WorkspaceMember{}, errors.New("role must be member, manager or admin")
	}
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	members, err := e.Repo.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	var m domain.WorkspaceMember
	found := false
	for _, member := range members {
		if member.UserID == userID {
			m = member
			found = true
			break
		}
	}
	if !found {
		return domain.WorkspaceMember{}, repo.ErrNotFound
	}
	m.Role = role
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertWorkspaceMember(ctx, tx, m); err != nil {
		return domain.WorkspaceMember{}, err
	}
	if err := e.Events.Append(ctx, tx, "workspace.member_role_changed", w.OrgID, "workspace", workspaceID, p.UserID,
		events.EventPayload{"user_id": userID, "role": role}); err != nil {
		return domain.WorkspaceMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkspaceMember{}, err
	}
	return m, nil
}

func (e Engine) RemoveWorkspaceMember(ctx context.Context, p access.Principal, workspaceID, userID string) error {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceManageMembers, workspaceID, access.KindWorkspace); err != nil {
		return err
	}
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveWorkspaceMember(ctx, tx, workspaceID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "workspace.member_removed", w.OrgID, "workspace", workspaceID, p.UserID,
		events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) WorkspaceStats(ctx context.Context, p access.Principal, workspaceID string) (map[string]int, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceView, workspaceID, access.KindWorkspace); err != nil {
		return nil, err
	}
	return e.Repo.WorkspaceStats(ctx, workspaceID)
}
