package repo

import (
	"context"
	"database/sql"
)

// Membership lookups backing the access resolver. These always hit the
// database: effective roles cascade from the organization, so nothing
// here may be cached across requests.

func (r Repo) OrgRole(ctx context.Context, orgID, userID string) (string, bool, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT role FROM org_members WHERE org_id=? AND user_id=?`, orgID, userID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (r Repo) WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, bool, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT role FROM workspace_members WHERE workspace_id=? AND user_id=?`, workspaceID, userID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (r Repo) WorkspaceOrg(ctx context.Context, workspaceID string) (string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT org_id FROM workspaces WHERE id=?`, workspaceID)
	var orgID string
	err := row.Scan(&orgID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return orgID, err
}

func (r Repo) TaskWorkspace(ctx context.Context, taskID string) (string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT workspace_id FROM tasks WHERE id=?`, taskID)
	var workspaceID string
	err := row.Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return workspaceID, err
}

func (r Repo) TaskAssignee(ctx context.Context, taskID string) (string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(assignee_id,'') FROM tasks WHERE id=?`, taskID)
	var assignee string
	err := row.Scan(&assignee)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return assignee, err
}
