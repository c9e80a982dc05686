package engine

import (
	"context"
	"errors"

	"taskbase/internal/access"
	"taskbase/internal/domain"
	"taskbase/internal/events"
	"taskbase/internal/repo"
)

func (e Engine) GetOrg(ctx context.Context, p access.Principal, orgID string) (domain.Organization, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgView, orgID, access.KindOrganization); err != nil {
		return domain.Organization{}, err
	}
	return e.Repo.GetOrg(ctx, orgID)
}

// ListOrgs is platform-wide and restricted to super admins.
func (e Engine) ListOrgs(ctx context.Context, p access.Principal) ([]domain.Organization, error) {
	if !access.CanPerform(p.Role, access.ActionOrgList) {
		return nil, access.ForbiddenError{Action: access.ActionOrgList, Role: p.Role}
	}
	return e.Repo.ListOrgs(ctx)
}

func (e Engine) UpdateOrg(ctx context.Context, p access.Principal, orgID, name string) (domain.Organization, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgUpdate, orgID, access.KindOrganization); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Repo.UpdateOrgName(ctx, orgID, name); err != nil {
		return domain.Organization{}, err
	}
	return e.Repo.GetOrg(ctx, orgID)
}

// AddOrgMember invites an existing user into the organization by email.
func (e Engine) AddOrgMember(ctx context.Context, p access.Principal, orgID, email, role string) (domain.OrgMember, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgManageMembers, orgID, access.KindOrganization); err != nil {
		return domain.OrgMember{}, err
	}
	if access.ParseRole(role) == access.RoleNone || role == "super_admin" {
		return domain.OrgMember{}, errors.New("role must be member, manager or admin")
	}
	user, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.OrgMember{}, err
	}
	m := domain.OrgMember{OrgID: orgID, UserID: user.ID, Role: role, JoinedAt: e.nowStr()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrgMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOrgMember(ctx, tx, m); err != nil {
		return domain.OrgMember{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.member_added", orgID, "organization", orgID, p.UserID,
		events.EventPayload{"user_id": user.ID, "role": role}); err != nil {
		return domain.OrgMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OrgMember{}, err
	}
	return m, nil
}

func (e Engine) UpdateOrgMemberRole(ctx context.Context, p access.Principal, orgID, userID, role string) (domain.OrgMember, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgManageMembers, orgID, access.KindOrganization); err != nil {
		return domain.OrgMember{}, err
	}
	if access.ParseRole(role) == access.RoleNone || role == "super_admin" {
		return domain.OrgMember{}, errors.New("role must be member, manager or admin")
	}
	current, err := e.orgMember(ctx, orgID, userID)
	if err != nil {
		return domain.OrgMember{}, err
	}
	current.Role = role
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrgMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOrgMember(ctx, tx, current); err != nil {
		return domain.OrgMember{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.member_role_changed", orgID, "organization", orgID, p.UserID,
		events.EventPayload{"user_id": userID, "role": role}); err != nil {
		return domain.OrgMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OrgMember{}, err
	}
	return current, nil
}

func (e Engine) RemoveOrgMember(ctx context.Context, p access.Principal, orgID, userID string) error {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgManageMembers, orgID, access.KindOrganization); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveOrgMember(ctx, tx, orgID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "org.member_removed", orgID, "organization", orgID, p.UserID,
		events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) OrgStats(ctx context.Context, p access.Principal, orgID string) (map[string]int, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgStats, orgID, access.KindOrganization); err != nil {
		return nil, err
	}
	return e.Repo.OrgStats(ctx, orgID)
}

func (e Engine) orgMember(ctx context.Context, orgID, userID string) (domain.OrgMember, error) {
	members, err := e.Repo.ListOrgMembers(ctx, orgID)
	if err != nil {
		return domain.OrgMember{}, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return m, nil
		}
	}
	return domain.OrgMember{}, repo.ErrNotFound
}
