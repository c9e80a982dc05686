package repo

import (
	"context"
	"database/sql"

	"taskbase/internal/domain"
)

const taskCols = `id,workspace_id,title,COALESCE(description,''),status,COALESCE(priority,''),assignee_id,created_by,due_date,independent_steps,created_at,updated_at`

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var assignee, due sql.NullString
	var independent int
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&assignee, &t.CreatedBy, &due, &independent, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	t.IndependentSteps = independent != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	independent := 0
	if t.IndependentSteps {
		independent = 1
	}
	if _, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO tasks(id,workspace_id,title,description,status,priority,assignee_id,created_by,due_date,independent_steps,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, nullable(t.Description), string(t.Status), nullable(t.Priority),
		nullablePtr(t.AssigneeID), t.CreatedBy, nullablePtr(t.DueDate), independent, t.CreatedAt, t.UpdatedAt); err != nil {
		return err
	}
	for _, s := range t.Steps {
		if err := r.insertStep(ctx, tx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.Steps, err = r.listSteps(ctx, id)
	return t, err
}

func (r Repo) ListTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE workspace_id=? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var assignee, due sql.NullString
		var independent int
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&assignee, &t.CreatedBy, &due, &independent, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if assignee.Valid {
			t.AssigneeID = &assignee.String
		}
		if due.Valid {
			t.DueDate = &due.String
		}
		t.IndependentSteps = independent != 0
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		steps, err := r.listSteps(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Steps = steps
	}
	return res, nil
}

// UpdateTask rewrites the mutable task columns and every step row. A task
// mutation is a single-document write: the whole task, steps included,
// goes out in one transaction.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	independent := 0
	if t.IndependentSteps {
		independent = 1
	}
	res, err := r.q(tx).ExecContext(ctx,
		`UPDATE tasks SET title=?,description=?,status=?,priority=?,assignee_id=?,due_date=?,independent_steps=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), string(t.Status), nullable(t.Priority),
		nullablePtr(t.AssigneeID), nullablePtr(t.DueDate), independent, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, s := range t.Steps {
		if err := r.updateStep(ctx, tx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) insertStep(ctx context.Context, tx *sql.Tx, s domain.Step) error {
	ev := s.Evidence
	if ev == nil {
		ev = &domain.Evidence{}
	}
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO steps(task_id,idx,description,requirement,status,file_url,file_type,file_name,uploaded_at,evidence_comment,reviewer_id,review_note)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.TaskID, s.Index, s.Description, string(s.Requirement), string(s.Status),
		nullable(ev.FileURL), nullable(ev.FileType), nullable(ev.FileName), nullable(ev.UploadedAt),
		nullable(ev.Comment), nullablePtr(s.ReviewerID), nullablePtr(s.ReviewNote))
	return err
}

func (r Repo) updateStep(ctx context.Context, tx *sql.Tx, s domain.Step) error {
	ev := s.Evidence
	if ev == nil {
		ev = &domain.Evidence{}
	}
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE steps SET status=?,file_url=?,file_type=?,file_name=?,uploaded_at=?,evidence_comment=?,reviewer_id=?,review_note=? WHERE task_id=? AND idx=?`,
		string(s.Status),
		nullable(ev.FileURL), nullable(ev.FileType), nullable(ev.FileName), nullable(ev.UploadedAt),
		nullable(ev.Comment), nullablePtr(s.ReviewerID), nullablePtr(s.ReviewNote),
		s.TaskID, s.Index)
	return err
}

func (r Repo) listSteps(ctx context.Context, taskID string) ([]domain.Step, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT task_id,idx,description,requirement,status,COALESCE(file_url,''),COALESCE(file_type,''),COALESCE(file_name,''),COALESCE(uploaded_at,''),COALESCE(evidence_comment,''),reviewer_id,review_note
		 FROM steps WHERE task_id=? ORDER BY idx`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Step
	for rows.Next() {
		var s domain.Step
		var ev domain.Evidence
		var reviewer, note sql.NullString
		if err := rows.Scan(&s.TaskID, &s.Index, &s.Description, &s.Requirement, &s.Status,
			&ev.FileURL, &ev.FileType, &ev.FileName, &ev.UploadedAt, &ev.Comment, &reviewer, &note); err != nil {
			return nil, err
		}
		if ev != (domain.Evidence{}) {
			s.Evidence = &ev
		}
		if reviewer.Valid {
			s.ReviewerID = &reviewer.String
		}
		if note.Valid {
			s.ReviewNote = &note.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO comments(id,task_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,task_id,author_id,body,created_at FROM comments WHERE task_id=? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
