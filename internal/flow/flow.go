// Package flow governs the ordered step sequence inside a task: which
// transitions are legal, what evidence a step needs, who may review it,
// and how step statuses roll up into the task status.
package flow

import (
	"fmt"

	"taskbase/internal/domain"
)

// InvalidTransitionError reports a step transition outside the allowed
// table. State is left unchanged.
type InvalidTransitionError struct {
	From domain.StepStatus
	To   domain.StepStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid step transition %s -> %s", e.From, e.To)
}

// ValidationError reports missing required evidence.
type ValidationError struct {
	Requirement domain.Requirement
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("step requires %s evidence", e.Requirement)
}

// SelfReviewError reports a reviewer attempting to sign off their own work.
type SelfReviewError struct {
	UserID string
}

func (e SelfReviewError) Error() string {
	return fmt.Sprintf("user %s cannot review their own step", e.UserID)
}

// SequenceError reports a later step started before earlier ones are approved.
type SequenceError struct {
	Index   int
	Blocked int
}

func (e SequenceError) Error() string {
	return fmt.Sprintf("step %d cannot start before step %d is approved", e.Index, e.Blocked)
}

func stepAt(task *domain.Task, idx int) (*domain.Step, error) {
	if idx < 0 || idx >= len(task.Steps) {
		return nil, fmt.Errorf("step index %d out of range", idx)
	}
	return &task.Steps[idx], nil
}

// Start moves a pending step to in_progress. Under the default sequential
// policy the step at idx-1 must be approved first; tasks flagged with
// independent steps skip that ordering check.
func Start(task *domain.Task, idx int) error {
	step, err := stepAt(task, idx)
	if err != nil {
		return err
	}
	if step.Status != domain.StepPending {
		return InvalidTransitionError{From: step.Status, To: domain.StepInProgress}
	}
	if !task.IndependentSteps && idx > 0 {
		if prev := task.Steps[idx-1]; prev.Status != domain.StepApproved {
			return SequenceError{Index: idx, Blocked: idx - 1}
		}
	}
	step.Status = domain.StepInProgress
	task.Status = AggregateStatus(task.Steps)
	return nil
}

// Submit attaches evidence to an in_progress step and routes it onward:
// steps with no requirement approve immediately, everything else lands in
// under_review for manager/admin sign-off. A file requirement without an
// uploaded file fails with ValidationError and leaves the step untouched.
func Submit(task *domain.Task, idx int, evidence domain.Evidence) error {
	step, err := stepAt(task, idx)
	if err != nil {
		return err
	}
	if step.Status != domain.StepInProgress {
		return InvalidTransitionError{From: step.Status, To: domain.StepSubmitted}
	}
	if step.Requirement == domain.RequireFile && evidence.FileURL == "" {
		// An earlier upload may already satisfy the requirement.
		if step.Evidence == nil || step.Evidence.FileURL == "" {
			return ValidationError{Requirement: step.Requirement}
		}
	}
	merged := mergeEvidence(step.Evidence, evidence)
	step.Evidence = &merged
	if step.Requirement == domain.RequireNone {
		step.Status = domain.StepApproved
	} else {
		step.Status = domain.StepUnderReview
	}
	task.Status = AggregateStatus(task.Steps)
	return nil
}

// Attach records evidence on an in_progress step without submitting it.
// Uploads land here first; Submit later routes the step onward.
func Attach(task *domain.Task, idx int, evidence domain.Evidence) error {
	step, err := stepAt(task, idx)
	if err != nil {
		return err
	}
	if step.Status != domain.StepInProgress {
		return InvalidTransitionError{From: step.Status, To: domain.StepInProgress}
	}
	merged := mergeEvidence(step.Evidence, evidence)
	step.Evidence = &merged
	return nil
}

// Review approves or rejects a step under review. The reviewer must not
// be the task's assignee; reviewer role checks happen at the gate.
func Review(task *domain.Task, idx int, reviewerID string, approve bool, note string) error {
	step, err := stepAt(task, idx)
	if err != nil {
		return err
	}
	target := domain.StepApproved
	if !approve {
		target = domain.StepRejected
	}
	if step.Status != domain.StepUnderReview {
		return InvalidTransitionError{From: step.Status, To: target}
	}
	if task.AssigneeID != nil && *task.AssigneeID == reviewerID {
		return SelfReviewError{UserID: reviewerID}
	}
	step.Status = target
	step.ReviewerID = &reviewerID
	if note != "" {
		step.ReviewNote = &note
	}
	task.Status = AggregateStatus(task.Steps)
	return nil
}

// Resume moves a rejected step back to in_progress for resubmission,
// clearing the prior evidence and review fields.
func Resume(task *domain.Task, idx int) error {
	step, err := stepAt(task, idx)
	if err != nil {
		return err
	}
	if step.Status != domain.StepRejected {
		return InvalidTransitionError{From: step.Status, To: domain.StepInProgress}
	}
	step.Status = domain.StepInProgress
	step.Evidence = nil
	step.ReviewerID = nil
	step.ReviewNote = nil
	task.Status = AggregateStatus(task.Steps)
	return nil
}

// AggregateStatus derives the task status from its steps: not_started
// while all steps are pending, completed iff every step is approved,
// in_progress otherwise. Recomputed on every step mutation, never cached.
func AggregateStatus(steps []domain.Step) domain.TaskStatus {
	if len(steps) == 0 {
		return domain.TaskNotStarted
	}
	allPending := true
	allApproved := true
	for _, s := range steps {
		if s.Status != domain.StepPending {
			allPending = false
		}
		if s.Status != domain.StepApproved {
			allApproved = false
		}
	}
	switch {
	case allPending:
		return domain.TaskNotStarted
	case allApproved:
		return domain.TaskCompleted
	default:
		return domain.TaskInProgress
	}
}

func mergeEvidence(existing *domain.Evidence, incoming domain.Evidence) domain.Evidence {
	if existing == nil {
		return incoming
	}
	merged := *existing
	if incoming.FileURL != "" {
		merged.FileURL = incoming.FileURL
		merged.FileType = incoming.FileType
		merged.FileName = incoming.FileName
		merged.UploadedAt = incoming.UploadedAt
	}
	if incoming.Comment != "" {
		merged.Comment = incoming.Comment
	}
	return merged
}
