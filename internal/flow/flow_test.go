package flow

import (
	"errors"
	"testing"

	"taskbase/internal/domain"
)

func twoStepTask(independent bool) *domain.Task {
	return &domain.Task{
		ID:               "t1",
		Status:           domain.TaskNotStarted,
		IndependentSteps: independent,
		Steps: []domain.Step{
			{TaskID: "t1", Index: 0, Requirement: domain.RequireNone, Status: domain.StepPending},
			{TaskID: "t1", Index: 1, Requirement: domain.RequireApproval, Status: domain.StepPending},
		},
	}
}

func TestStartRespectsSequence(t *testing.T) {
	task := twoStepTask(false)
	err := Start(task, 1)
	var seq SequenceError
	if !errors.As(err, &seq) {
		t.Fatalf("expected sequence error, got %v", err)
	}
	if seq.Blocked != 0 {
		t.Fatalf("expected blocked on step 0, got %d", seq.Blocked)
	}
	if task.Steps[1].Status != domain.StepPending {
		t.Fatalf("failed start must not mutate, got %s", task.Steps[1].Status)
	}
}

func TestIndependentStepsSkipSequence(t *testing.T) {
	task := twoStepTask(true)
	if err := Start(task, 1); err != nil {
		t.Fatalf("independent start: %v", err)
	}
	if task.Steps[1].Status != domain.StepInProgress {
		t.Fatalf("expected in_progress, got %s", task.Steps[1].Status)
	}
	if task.Status != domain.TaskInProgress {
		t.Fatalf("expected task in_progress, got %s", task.Status)
	}
}

func TestSubmitWithoutRequirementApproves(t *testing.T) {
	task := twoStepTask(false)
	if err := Start(task, 0); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 0, domain.Evidence{Comment: "done"}); err != nil {
		t.Fatal(err)
	}
	if task.Steps[0].Status != domain.StepApproved {
		t.Fatalf("expected approved, got %s", task.Steps[0].Status)
	}
	if task.Steps[0].Evidence == nil || task.Steps[0].Evidence.Comment != "done" {
		t.Fatalf("expected evidence comment kept, got %+v", task.Steps[0].Evidence)
	}
}

func TestSubmitApprovalGoesUnderReview(t *testing.T) {
	task := twoStepTask(true)
	if err := Start(task, 1); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 1, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	if task.Steps[1].Status != domain.StepUnderReview {
		t.Fatalf("expected under_review, got %s", task.Steps[1].Status)
	}
}

func TestFileRequirementNeedsUpload(t *testing.T) {
	task := &domain.Task{
		ID:     "t1",
		Status: domain.TaskNotStarted,
		Steps: []domain.Step{
			{TaskID: "t1", Index: 0, Requirement: domain.RequireFile, Status: domain.StepPending},
		},
	}
	if err := Start(task, 0); err != nil {
		t.Fatal(err)
	}
	err := Submit(task, 0, domain.Evidence{Comment: "no file"})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// An upload attached before submit satisfies the requirement.
	if err := Attach(task, 0, domain.Evidence{FileURL: "/uploads/a.pdf", FileName: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 0, domain.Evidence{Comment: "see attachment"}); err != nil {
		t.Fatalf("submit after attach: %v", err)
	}
	ev := task.Steps[0].Evidence
	if ev.FileURL != "/uploads/a.pdf" || ev.Comment != "see attachment" {
		t.Fatalf("expected merged evidence, got %+v", ev)
	}
	if task.Steps[0].Status != domain.StepUnderReview {
		t.Fatalf("expected under_review, got %s", task.Steps[0].Status)
	}
}

func TestAttachNeedsInProgress(t *testing.T) {
	task := twoStepTask(false)
	err := Attach(task, 0, domain.Evidence{FileURL: "/uploads/a.pdf"})
	var inv InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestReviewRejectsAssignee(t *testing.T) {
	assignee := "u1"
	task := twoStepTask(true)
	task.AssigneeID = &assignee
	if err := Start(task, 1); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 1, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	err := Review(task, 1, "u1", true, "")
	var sre SelfReviewError
	if !errors.As(err, &sre) {
		t.Fatalf("expected self review error, got %v", err)
	}
	if err := Review(task, 1, "u2", false, "redo"); err != nil {
		t.Fatal(err)
	}
	if task.Steps[1].Status != domain.StepRejected {
		t.Fatalf("expected rejected, got %s", task.Steps[1].Status)
	}
	if task.Steps[1].ReviewNote == nil || *task.Steps[1].ReviewNote != "redo" {
		t.Fatalf("expected review note kept")
	}
}

func TestResumeClearsEvidenceAndReview(t *testing.T) {
	task := twoStepTask(true)
	if err := Start(task, 1); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 1, domain.Evidence{Comment: "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := Review(task, 1, "u2", false, "not good"); err != nil {
		t.Fatal(err)
	}
	if err := Resume(task, 1); err != nil {
		t.Fatal(err)
	}
	s := task.Steps[1]
	if s.Status != domain.StepInProgress || s.Evidence != nil || s.ReviewerID != nil || s.ReviewNote != nil {
		t.Fatalf("expected clean in_progress step, got %+v", s)
	}
}

func TestStepIndexOutOfRange(t *testing.T) {
	task := twoStepTask(false)
	if err := Start(task, 5); err == nil {
		t.Fatal("expected error for index out of range")
	}
	if err := Start(task, -1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.StepStatus
		want     domain.TaskStatus
	}{
		{"empty", nil, domain.TaskNotStarted},
		{"all pending", []domain.StepStatus{domain.StepPending, domain.StepPending}, domain.TaskNotStarted},
		{"one started", []domain.StepStatus{domain.StepInProgress, domain.StepPending}, domain.TaskInProgress},
		{"mixed approved", []domain.StepStatus{domain.StepApproved, domain.StepPending}, domain.TaskInProgress},
		{"rejected counts as progress", []domain.StepStatus{domain.StepApproved, domain.StepRejected}, domain.TaskInProgress},
		{"all approved", []domain.StepStatus{domain.StepApproved, domain.StepApproved}, domain.TaskCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var steps []domain.Step
			for i, s := range tc.statuses {
				steps = append(steps, domain.Step{Index: i, Status: s})
			}
			if got := AggregateStatus(steps); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFullSequentialWalk(t *testing.T) {
	task := twoStepTask(false)
	if err := Start(task, 0); err != nil {
		t.Fatal(err)
	}
	if err := Submit(task, 0, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	if err := Start(task, 1); err != nil {
		t.Fatalf("step 1 should unblock after step 0 approval: %v", err)
	}
	if err := Submit(task, 1, domain.Evidence{}); err != nil {
		t.Fatal(err)
	}
	if err := Review(task, 1, "reviewer", true, "ship it"); err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskCompleted {
		t.Fatalf("expected completed task, got %s", task.Status)
	}
}
