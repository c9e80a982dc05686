package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskbase/internal/access"
	"taskbase/internal/config"
	"taskbase/internal/db"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
	"taskbase/internal/flow"
	"taskbase/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Admin  access.Principal
	Org    domain.Organization
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	res, err := eng.Register(ctx, "Admin", "admin@example.com", "password123", "Acme")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return testEnv{
		Engine: eng,
		Ctx:    ctx,
		Admin:  access.Principal{UserID: res.User.ID, Role: access.RoleAdmin},
		Org:    res.Org,
	}
}

// addUser creates an account and puts it into the org with the given role.
func (env testEnv) addUser(t *testing.T, email, role string) access.Principal {
	t.Helper()
	res, err := env.Engine.Register(env.Ctx, "User "+email, email, "password123", "throwaway-"+email)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if _, err := env.Engine.AddOrgMember(env.Ctx, env.Admin, env.Org.ID, email, role); err != nil {
		t.Fatalf("add org member %s: %v", email, err)
	}
	return access.Principal{UserID: res.User.ID, Role: access.ParseRole(role)}
}

func (env testEnv) createWorkspace(t *testing.T) domain.Workspace {
	t.Helper()
	w, err := env.Engine.CreateWorkspace(env.Ctx, env.Admin, env.Org.ID, "Ops", "operations")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return w
}

func (env testEnv) joinWorkspace(t *testing.T, workspaceID string, p access.Principal, role string) {
	t.Helper()
	if _, err := env.Engine.AddWorkspaceMember(env.Ctx, env.Admin, workspaceID, p.UserID, role); err != nil {
		t.Fatalf("add workspace member: %v", err)
	}
}

func (env testEnv) createTask(t *testing.T, workspaceID string, in engine.TaskInput) domain.Task {
	t.Helper()
	if in.Title == "" {
		in.Title = "task"
	}
	if len(in.Steps) == 0 {
		in.Steps = []engine.StepSpec{{Description: "only step"}}
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Admin, workspaceID, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	user, err := env.Engine.Login(env.Ctx, "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.OrgID != env.Org.ID {
		t.Fatalf("expected org %s, got %s", env.Org.ID, user.OrgID)
	}
	if _, err := env.Engine.Login(env.Ctx, "admin@example.com", "wrong-password"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Register(env.Ctx, "Dup", "admin@example.com", "password123", "Other"); !errors.Is(err, engine.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestEmailVerification(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Register(env.Ctx, "V", "v@example.com", "password123", "VOrg")
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.Engine.VerifyEmail(env.Ctx, res.VerifyToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !user.EmailVerified {
		t.Fatalf("expected verified user")
	}
	// token is single-use
	if _, err := env.Engine.VerifyEmail(env.Ctx, res.VerifyToken); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected second verify to fail, got %v", err)
	}
}

func TestStepLifecycle(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	manager := env.addUser(t, "manager@example.com", "manager")
	member := env.addUser(t, "member@example.com", "member")
	env.joinWorkspace(t, w.ID, manager, "manager")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:      "deploy",
		AssigneeID: &member.UserID,
		Steps: []engine.StepSpec{
			{Description: "prepare", Requirement: domain.RequireNone},
			{Description: "ship", Requirement: domain.RequireApproval},
		},
	})
	if task.Status != domain.TaskNotStarted {
		t.Fatalf("expected not_started, got %s", task.Status)
	}

	// step 1 cannot start before step 0 is approved
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 1); err == nil {
		t.Fatalf("expected sequence error")
	}

	task, err := env.Engine.StartStep(env.Ctx, member, task.ID, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if task.Status != domain.TaskInProgress {
		t.Fatalf("expected in_progress, got %s", task.Status)
	}
	// no requirement: submit approves directly
	task, err = env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{Comment: "done"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Steps[0].Status != domain.StepApproved {
		t.Fatalf("expected approved, got %s", task.Steps[0].Status)
	}

	// approval-gated step routes through review
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 1); err != nil {
		t.Fatalf("start 1: %v", err)
	}
	task, err = env.Engine.SubmitStep(env.Ctx, member, task.ID, 1, domain.Evidence{Comment: "ready"})
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if task.Steps[1].Status != domain.StepUnderReview {
		t.Fatalf("expected under_review, got %s", task.Steps[1].Status)
	}

	// member lacks reviewer standing
	if _, err := env.Engine.ReviewStep(env.Ctx, member, task.ID, 1, true, ""); err == nil {
		t.Fatalf("expected member review to be denied")
	}
	task, err = env.Engine.ReviewStep(env.Ctx, manager, task.ID, 1, true, "lgtm")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if task.Status != domain.TaskCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
}

func TestRejectAndResume(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	manager := env.addUser(t, "manager@example.com", "manager")
	member := env.addUser(t, "member@example.com", "member")
	env.joinWorkspace(t, w.ID, manager, "manager")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:      "audit",
		AssigneeID: &member.UserID,
		Steps:      []engine.StepSpec{{Description: "collect", Requirement: domain.RequireApproval}},
	})
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{Comment: "v1"}); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.ReviewStep(env.Ctx, manager, task.ID, 0, false, "incomplete")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if task.Steps[0].Status != domain.StepRejected {
		t.Fatalf("expected rejected, got %s", task.Steps[0].Status)
	}
	if task.Steps[0].ReviewNote == nil || *task.Steps[0].ReviewNote != "incomplete" {
		t.Fatalf("expected review note")
	}
	task, err = env.Engine.ResumeStep(env.Ctx, member, task.ID, 0)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if task.Steps[0].Status != domain.StepInProgress {
		t.Fatalf("expected in_progress after resume, got %s", task.Steps[0].Status)
	}
	if task.Steps[0].Evidence != nil || task.Steps[0].ReviewNote != nil {
		t.Fatalf("expected evidence and review cleared on resume")
	}
}

func TestSelfReviewForbidden(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	manager := env.addUser(t, "manager@example.com", "manager")
	env.joinWorkspace(t, w.ID, manager, "manager")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:      "solo",
		AssigneeID: &manager.UserID,
		Steps:      []engine.StepSpec{{Description: "work", Requirement: domain.RequireApproval}},
	})
	if _, err := env.Engine.StartStep(env.Ctx, manager, task.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitStep(env.Ctx, manager, task.ID, 0, domain.Evidence{Comment: "mine"}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.ReviewStep(env.Ctx, manager, task.ID, 0, true, "")
	var selfErr flow.SelfReviewError
	if !errors.As(err, &selfErr) {
		t.Fatalf("expected self-review error, got %v", err)
	}
}

func TestFileRequirementBlocksSubmit(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	member := env.addUser(t, "member@example.com", "member")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:      "upload",
		AssigneeID: &member.UserID,
		Steps:      []engine.StepSpec{{Description: "attach report", Requirement: domain.RequireFile}},
	})
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 0); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{Comment: "no file"})
	var valErr flow.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// attach first, then submit without repeating the file
	if _, err := env.Engine.AttachEvidence(env.Ctx, member, task.ID, 0, domain.Evidence{
		FileURL: "/uploads/report.pdf", FileType: "application/pdf", FileName: "report.pdf",
	}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	task, err = env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{Comment: "see file"})
	if err != nil {
		t.Fatalf("submit after attach: %v", err)
	}
	if task.Steps[0].Status != domain.StepUnderReview {
		t.Fatalf("expected under_review, got %s", task.Steps[0].Status)
	}
	if task.Steps[0].Evidence.FileURL != "/uploads/report.pdf" || task.Steps[0].Evidence.Comment != "see file" {
		t.Fatalf("expected merged evidence, got %+v", task.Steps[0].Evidence)
	}
}

func TestIndependentStepsSkipOrdering(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	member := env.addUser(t, "member@example.com", "member")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:            "parallel",
		AssigneeID:       &member.UserID,
		IndependentSteps: true,
		Steps: []engine.StepSpec{
			{Description: "a"},
			{Description: "b"},
		},
	})
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 1); err != nil {
		t.Fatalf("expected independent start to pass: %v", err)
	}
}

func TestMembershipDenies(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	task := env.createTask(t, w.ID, engine.TaskInput{Title: "private"})

	// a user from another org is not a member anywhere in this hierarchy
	res, err := env.Engine.Register(env.Ctx, "Out", "out@example.com", "password123", "Outsider")
	if err != nil {
		t.Fatal(err)
	}
	outsider := access.Principal{UserID: res.User.ID, Role: access.RoleAdmin}
	_, err = env.Engine.GetTask(env.Ctx, outsider, task.ID)
	var notMember access.NotAMemberError
	if !errors.As(err, &notMember) {
		t.Fatalf("expected not-a-member error, got %v", err)
	}

	// org member below admin cannot delete tasks
	member := env.addUser(t, "member@example.com", "member")
	if _, err := env.Engine.AddWorkspaceMember(env.Ctx, env.Admin, w.ID, member.UserID, "member"); err != nil {
		t.Fatal(err)
	}
	err = env.Engine.DeleteTask(env.Ctx, member, task.ID)
	var forbidden access.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestOrgAdminInheritsWorkspaceAccess(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	// second org admin has no workspace entry but inherits admin standing
	admin2 := env.addUser(t, "admin2@example.com", "admin")
	if _, err := env.Engine.GetWorkspace(env.Ctx, admin2, w.ID); err != nil {
		t.Fatalf("expected org admin to view workspace: %v", err)
	}
	// plain org member without a workspace entry is denied
	member := env.addUser(t, "member@example.com", "member")
	_, err := env.Engine.GetWorkspace(env.Ctx, member, w.ID)
	var notMember access.NotAMemberError
	if !errors.As(err, &notMember) {
		t.Fatalf("expected deny for non-workspace member, got %v", err)
	}
}

func TestWorkspaceMemberMustBeOrgMember(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	res, err := env.Engine.Register(env.Ctx, "Out", "out@example.com", "password123", "Elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddWorkspaceMember(env.Ctx, env.Admin, w.ID, res.User.ID, "member"); err == nil {
		t.Fatalf("expected rejection for non-org user")
	}
}

func TestDeleteWorkspaceCascades(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	task := env.createTask(t, w.ID, engine.TaskInput{Title: "doomed"})
	if _, err := env.Engine.AddComment(env.Ctx, env.Admin, task.ID, "gone soon"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteWorkspace(env.Ctx, env.Admin, w.ID); err != nil {
		t.Fatalf("delete workspace: %v", err)
	}
	var tasks, steps, comments int
	row := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM tasks WHERE workspace_id=?`, w.ID)
	if err := row.Scan(&tasks); err != nil {
		t.Fatal(err)
	}
	row = env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM steps WHERE task_id=?`, task.ID)
	if err := row.Scan(&steps); err != nil {
		t.Fatal(err)
	}
	row = env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM comments WHERE task_id=?`, task.ID)
	if err := row.Scan(&comments); err != nil {
		t.Fatal(err)
	}
	if tasks != 0 || steps != 0 || comments != 0 {
		t.Fatalf("expected cascade, got tasks=%d steps=%d comments=%d", tasks, steps, comments)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	member := env.addUser(t, "member@example.com", "member")
	task := env.createTask(t, w.ID, engine.TaskInput{Title: "evented", AssigneeID: &member.UserID})
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, task.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected multiple events, got %d", count)
	}
}

func TestSuperAdminBypassStopsAtReview(t *testing.T) {
	env := newTestEnv(t)
	w := env.createWorkspace(t)
	member := env.addUser(t, "member@example.com", "member")
	task := env.createTask(t, w.ID, engine.TaskInput{
		Title:      "checked",
		AssigneeID: &member.UserID,
		Steps:      []engine.StepSpec{{Description: "work", Requirement: domain.RequireApproval}},
	})
	if _, err := env.Engine.StartStep(env.Ctx, member, task.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitStep(env.Ctx, member, task.ID, 0, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	root := access.Principal{UserID: "root", Role: access.RoleSuperAdmin}
	// platform admin can read anything
	if _, err := env.Engine.GetTask(env.Ctx, root, task.ID); err != nil {
		t.Fatalf("expected super admin read: %v", err)
	}
	// but review needs workspace standing
	if _, err := env.Engine.ReviewStep(env.Ctx, root, task.ID, 0, true, ""); err == nil {
		t.Fatalf("expected super admin review to be denied")
	}
}
