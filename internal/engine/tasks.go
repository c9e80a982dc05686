package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"taskbase/internal/access"
	"taskbase/internal/domain"
	"taskbase/internal/events"
	"taskbase/internal/flow"
	"taskbase/internal/mail"
)

// StepSpec describes one step at task creation. The step list is fixed
// once the task exists; only step state changes afterwards.
type StepSpec struct {
	Description string             `json:"description"`
	Requirement domain.Requirement `json:"requirement,omitempty" enum:"none,file,approval"`
}

// TaskInput is the caller-supplied part of a new or updated task.
type TaskInput struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Priority         string     `json:"priority,omitempty" enum:"low,medium,high"`
	AssigneeID       *string    `json:"assignee_id,omitempty"`
	DueDate          *string    `json:"due_date,omitempty" format:"date-time"`
	IndependentSteps bool       `json:"independent_steps,omitempty"`
	Steps            []StepSpec `json:"steps,omitempty"`
}

func (e Engine) ListTasks(ctx context.Context, p access.Principal, workspaceID string) ([]domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionWorkspaceView, workspaceID, access.KindWorkspace); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, workspaceID)
}

func (e Engine) CreateTask(ctx context.Context, p access.Principal, workspaceID string, in TaskInput) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionTaskCreate, workspaceID, access.KindWorkspace); err != nil {
		return domain.Task{}, err
	}
	if in.Title == "" {
		return domain.Task{}, errors.New("task title is required")
	}
	if len(in.Steps) == 0 {
		return domain.Task{}, errors.New("a task needs at least one step")
	}
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.nowStr()
	t := domain.Task{
		ID:               uuid.New().String(),
		WorkspaceID:      workspaceID,
		Title:            in.Title,
		Description:      in.Description,
		Status:           domain.TaskNotStarted,
		Priority:         in.Priority,
		AssigneeID:       in.AssigneeID,
		CreatedBy:        p.UserID,
		DueDate: in.DueDate,
		// Config can relax the ordering policy for every new task.
		IndependentSteps: in.IndependentSteps || e.Config.Steps.Independent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, s := range in.Steps {
		req := s.Requirement
		if req == "" {
			req = domain.RequireNone
		}
		t.Steps = append(t.Steps, domain.Step{
			TaskID:      t.ID,
			Index:       i,
			Description: s.Description,
			Requirement: req,
			Status:      domain.StepPending,
		})
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", w.OrgID, "task", t.ID, p.UserID,
		events.EventPayload{"title": t.Title, "steps": len(t.Steps)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.notifyAssignment(ctx, t)
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, p access.Principal, taskID string) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionTaskView, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// UpdateTask changes task metadata: title, description, priority, due
// date, assignee and the step-ordering flag. Step content and state are
// out of scope here; those move through the step operations.
func (e Engine) UpdateTask(ctx context.Context, p access.Principal, taskID string, in TaskInput) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionTaskUpdate, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if in.Title == "" {
		return domain.Task{}, errors.New("task title is required")
	}
	prevAssignee := ""
	if t.AssigneeID != nil {
		prevAssignee = *t.AssigneeID
	}
	t.Title = in.Title
	t.Description = in.Description
	t.Priority = in.Priority
	t.AssigneeID = in.AssigneeID
	t.DueDate = in.DueDate
	t.IndependentSteps = in.IndependentSteps
	t.UpdatedAt = e.nowStr()

	workspaceID, err := e.Repo.TaskWorkspace(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	orgID, err := e.Repo.WorkspaceOrg(ctx, workspaceID)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", orgID, "task", t.ID, p.UserID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if t.AssigneeID != nil && *t.AssigneeID != prevAssignee {
		e.notifyAssignment(ctx, t)
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, p access.Principal, taskID string) error {
	if err := e.Gate.Authorize(ctx, p, access.ActionTaskDelete, taskID, access.KindTask); err != nil {
		return err
	}
	workspaceID, err := e.Repo.TaskWorkspace(ctx, taskID)
	if err != nil {
		return err
	}
	orgID, err := e.Repo.WorkspaceOrg(ctx, workspaceID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", orgID, "task", taskID, p.UserID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddComment(ctx context.Context, p access.Principal, taskID, body string) (domain.Comment, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionCommentAdd, taskID, access.KindTask); err != nil {
		return domain.Comment{}, err
	}
	if body == "" {
		return domain.Comment{}, errors.New("comment body is required")
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		AuthorID:  p.UserID,
		Body:      body,
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, p access.Principal, taskID string) ([]domain.Comment, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionTaskView, taskID, access.KindTask); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, taskID)
}

// notifyAssignment mails the assignee after a commit. Best effort.
func (e Engine) notifyAssignment(ctx context.Context, t domain.Task) {
	if t.AssigneeID == nil {
		return
	}
	assignee, err := e.Repo.GetUser(ctx, *t.AssigneeID)
	if err != nil {
		return
	}
	due := ""
	if t.DueDate != nil {
		due = *t.DueDate
	}
	e.Mail.Send(mail.KindTaskAssignment, assignee.Email, mail.Vars{
		TaskID:    t.ID,
		TaskTitle: t.Title,
		TaskDesc:  t.Description,
		DueDate:   due,
		Priority:  t.Priority,
	})
}

// notifyStatusChange mails the assignee and creator when the aggregate
// task status moved as a result of a step transition.
func (e Engine) notifyStatusChange(ctx context.Context, t domain.Task, prev domain.TaskStatus) {
	if t.Status == prev {
		return
	}
	seen := map[string]bool{}
	recipients := []string{t.CreatedBy}
	if t.AssigneeID != nil {
		recipients = append(recipients, *t.AssigneeID)
	}
	for _, id := range recipients {
		if seen[id] {
			continue
		}
		seen[id] = true
		user, err := e.Repo.GetUser(ctx, id)
		if err != nil {
			continue
		}
		e.Mail.Send(mail.KindTaskStatusUpdate, user.Email, mail.Vars{
			TaskID:     t.ID,
			TaskTitle:  t.Title,
			TaskDesc:   t.Description,
			TaskStatus: string(t.Status),
		})
	}
}

// stepMutation loads the task, applies fn to it in memory, persists the
// whole task and appends the event, then sends status mail post-commit.
func (e Engine) stepMutation(ctx context.Context, p access.Principal, taskID string, evtType string, idx int, fn func(*domain.Task) error) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	prev := t.Status
	if err := fn(&t); err != nil {
		return domain.Task{}, err
	}
	t.UpdatedAt = e.nowStr()
	workspaceID, err := e.Repo.TaskWorkspace(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	orgID, err := e.Repo.WorkspaceOrg(ctx, workspaceID)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, orgID, "task", t.ID, p.UserID,
		events.EventPayload{"step": idx, "status": string(t.Steps[idx].Status)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.notifyStatusChange(ctx, t, prev)
	return t, nil
}

// StartStep moves a pending step to in_progress.
func (e Engine) StartStep(ctx context.Context, p access.Principal, taskID string, idx int) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionStepAdvance, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	return e.stepMutation(ctx, p, taskID, "step.started", idx, func(t *domain.Task) error {
		return flow.Start(t, idx)
	})
}

// SubmitStep attaches evidence and routes the step to approved or
// under_review depending on its requirement.
func (e Engine) SubmitStep(ctx context.Context, p access.Principal, taskID string, idx int, evidence domain.Evidence) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionStepAdvance, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	return e.stepMutation(ctx, p, taskID, "step.submitted", idx, func(t *domain.Task) error {
		return flow.Submit(t, idx, evidence)
	})
}

// ReviewStep approves or rejects a step under review. Requires manager or
// admin standing in the workspace; the assignee cannot review their own task.
func (e Engine) ReviewStep(ctx context.Context, p access.Principal, taskID string, idx int, approve bool, note string) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionStepReview, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	evtType := "step.approved"
	if !approve {
		evtType = "step.rejected"
	}
	return e.stepMutation(ctx, p, taskID, evtType, idx, func(t *domain.Task) error {
		return flow.Review(t, idx, p.UserID, approve, note)
	})
}

// ResumeStep reopens a rejected step for another attempt.
func (e Engine) ResumeStep(ctx context.Context, p access.Principal, taskID string, idx int) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionStepAdvance, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	return e.stepMutation(ctx, p, taskID, "step.resumed", idx, func(t *domain.Task) error {
		return flow.Resume(t, idx)
	})
}

// AttachEvidence records an uploaded file against an in_progress step
// without submitting it. The later submit call completes the handoff.
func (e Engine) AttachEvidence(ctx context.Context, p access.Principal, taskID string, idx int, evidence domain.Evidence) (domain.Task, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionStepAdvance, taskID, access.KindTask); err != nil {
		return domain.Task{}, err
	}
	return e.stepMutation(ctx, p, taskID, "step.evidence_attached", idx, func(t *domain.Task) error {
		return flow.Attach(t, idx, evidence)
	})
}
