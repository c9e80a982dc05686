package repo

import (
	"context"
	"database/sql"

	"taskbase/internal/domain"
)

func scanOrg(row *sql.Row) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) InsertOrg(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO organizations(id,name,created_at) VALUES (?,?,?)`,
		o.ID, o.Name, o.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Organization, error) {
	o, err := scanOrg(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM organizations WHERE id=?`, id))
	if err != nil {
		return o, err
	}
	o.Members, err = r.ListOrgMembers(ctx, id)
	return o, err
}

func (r Repo) ListOrgs(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM organizations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOrgName(ctx context.Context, id, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE organizations SET name=? WHERE id=?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Org members. Each user id appears at most once per organization,
// enforced by the primary key.

func (r Repo) UpsertOrgMember(ctx context.Context, tx *sql.Tx, m domain.OrgMember) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO org_members(org_id,user_id,role,joined_at) VALUES (?,?,?,?)
		 ON CONFLICT(org_id,user_id) DO UPDATE SET role=excluded.role`,
		m.OrgID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) RemoveOrgMember(ctx context.Context, tx *sql.Tx, orgID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM org_members WHERE org_id=? AND user_id=?`, orgID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListOrgMembers(ctx context.Context, orgID string) ([]domain.OrgMember, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT org_id,user_id,role,joined_at FROM org_members WHERE org_id=? ORDER BY joined_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrgMember
	for rows.Next() {
		var m domain.OrgMember
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// OrgStats counts workspaces, tasks and members under an organization.
func (r Repo) OrgStats(ctx context.Context, orgID string) (map[string]int, error) {
	stats := map[string]int{}
	row := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM org_members WHERE org_id=?`, orgID)
	var members int
	if err := row.Scan(&members); err != nil {
		return nil, err
	}
	stats["members"] = members
	row = r.DB.QueryRowContext(ctx, `SELECT count(*) FROM workspaces WHERE org_id=?`, orgID)
	var workspaces int
	if err := row.Scan(&workspaces); err != nil {
		return nil, err
	}
	stats["workspaces"] = workspaces
	row = r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks t JOIN workspaces w ON w.id=t.workspace_id WHERE w.org_id=?`, orgID)
	var tasks int
	if err := row.Scan(&tasks); err != nil {
		return nil, err
	}
	stats["tasks"] = tasks
	return stats, nil
}
