package repo

import (
	"context"
	"database/sql"

	"taskbase/internal/domain"
)

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO workspaces(id,org_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.OrgID, w.Name, nullable(w.Description), w.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id,org_id,name,COALESCE(description,''),created_at FROM workspaces WHERE id=?`, id)
	var w domain.Workspace
	err := row.Scan(&w.ID, &w.OrgID, &w.Name, &w.Description, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.Members, err = r.ListWorkspaceMembers(ctx, id)
	return w, err
}

func (r Repo) ListWorkspaces(ctx context.Context, orgID string) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,org_id,name,COALESCE(description,''),created_at FROM workspaces WHERE org_id=? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.OrgID, &w.Name, &w.Description, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) UpdateWorkspace(ctx context.Context, id, name, description string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE workspaces SET name=?,description=? WHERE id=?`,
		name, nullable(description), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkspace removes the workspace; its tasks, steps and comments
// cascade via foreign keys.
func (r Repo) DeleteWorkspace(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workspaces WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertWorkspaceMember(ctx context.Context, tx *sql.Tx, m domain.WorkspaceMember) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO workspace_members(workspace_id,user_id,role,joined_at) VALUES (?,?,?,?)
		 ON CONFLICT(workspace_id,user_id) DO UPDATE SET role=excluded.role`,
		m.WorkspaceID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) RemoveWorkspaceMember(ctx context.Context, tx *sql.Tx, workspaceID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id=? AND user_id=?`, workspaceID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT workspace_id,user_id,role,joined_at FROM workspace_members WHERE workspace_id=? ORDER BY joined_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkspaceMember
	for rows.Next() {
		var m domain.WorkspaceMember
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) WorkspaceStats(ctx context.Context, workspaceID string) (map[string]int, error) {
	stats := map[string]int{}
	var members int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM workspace_members WHERE workspace_id=?`, workspaceID).Scan(&members); err != nil {
		return nil, err
	}
	stats["members"] = members
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status,count(*) FROM tasks WHERE workspace_id=? GROUP BY status`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats["tasks_"+status] = n
		total += n
	}
	stats["tasks"] = total
	return stats, rows.Err()
}
