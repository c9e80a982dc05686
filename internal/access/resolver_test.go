package access

import (
	"context"
	"errors"
	"testing"
)

// fakeStore is an in-memory MembershipStore for cascade tests.
type fakeStore struct {
	orgRoles       map[string]string // "orgID/userID" -> role
	workspaceRoles map[string]string // "wsID/userID" -> role
	workspaceOrg   map[string]string
	taskWorkspace  map[string]string
	taskAssignee   map[string]string
}

func (s fakeStore) OrgRole(_ context.Context, orgID, userID string) (string, bool, error) {
	r, ok := s.orgRoles[orgID+"/"+userID]
	return r, ok, nil
}

func (s fakeStore) WorkspaceRole(_ context.Context, wsID, userID string) (string, bool, error) {
	r, ok := s.workspaceRoles[wsID+"/"+userID]
	return r, ok, nil
}

func (s fakeStore) WorkspaceOrg(_ context.Context, wsID string) (string, error) {
	return s.workspaceOrg[wsID], nil
}

func (s fakeStore) TaskWorkspace(_ context.Context, taskID string) (string, error) {
	return s.taskWorkspace[taskID], nil
}

func (s fakeStore) TaskAssignee(_ context.Context, taskID string) (string, error) {
	return s.taskAssignee[taskID], nil
}

func newFakeStore() fakeStore {
	return fakeStore{
		orgRoles: map[string]string{
			"org1/alice": "admin",
			"org1/bob":   "member",
		},
		workspaceRoles: map[string]string{
			"ws1/carol": "manager",
		},
		workspaceOrg:  map[string]string{"ws1": "org1"},
		taskWorkspace: map[string]string{"t1": "ws1"},
		taskAssignee:  map[string]string{"t1": "dave"},
	}
}

func TestResolveDirectWorkspaceRole(t *testing.T) {
	r := Resolver{Store: newFakeStore()}
	m, ok, err := r.Resolve(context.Background(), "carol", "ws1", KindWorkspace)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if m.Role != RoleManager || m.Inherited {
		t.Fatalf("expected direct manager, got %+v", m)
	}
}

func TestResolveOrgAdminCascadesDown(t *testing.T) {
	r := Resolver{Store: newFakeStore()}
	m, ok, err := r.Resolve(context.Background(), "alice", "t1", KindTask)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if m.Role != RoleAdmin || !m.Inherited {
		t.Fatalf("expected inherited admin, got %+v", m)
	}
}

func TestResolveOrgMemberDoesNotCascade(t *testing.T) {
	r := Resolver{Store: newFakeStore()}
	_, ok, err := r.Resolve(context.Background(), "bob", "ws1", KindWorkspace)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("plain org member must not inherit workspace access")
	}
}

func TestGateAssigneeCanAdvanceOwnTask(t *testing.T) {
	g := NewGate(newFakeStore())
	p := Principal{UserID: "dave", Role: RoleNone}
	if err := g.Authorize(context.Background(), p, ActionStepAdvance, "t1", KindTask); err != nil {
		t.Fatalf("assignee advance denied: %v", err)
	}
	// The override is scoped to advancement only.
	err := g.Authorize(context.Background(), p, ActionTaskDelete, "t1", KindTask)
	var nme NotAMemberError
	if !errors.As(err, &nme) {
		t.Fatalf("expected membership denial, got %v", err)
	}
}

func TestGateSuperAdminBypassStopsAtReview(t *testing.T) {
	g := NewGate(newFakeStore())
	p := Principal{UserID: "root", Role: RoleSuperAdmin}
	if err := g.Authorize(context.Background(), p, ActionOrgUpdate, "org1", KindOrganization); err != nil {
		t.Fatalf("super admin org update denied: %v", err)
	}
	err := g.Authorize(context.Background(), p, ActionStepReview, "t1", KindTask)
	var nme NotAMemberError
	if !errors.As(err, &nme) {
		t.Fatalf("expected membership denial on review, got %v", err)
	}
}

func TestGateReviewNeedsManagerOrAdmin(t *testing.T) {
	store := newFakeStore()
	store.workspaceRoles["ws1/bob"] = "member"
	g := NewGate(store)
	err := g.Authorize(context.Background(), Principal{UserID: "bob"}, ActionStepReview, "t1", KindTask)
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := g.Authorize(context.Background(), Principal{UserID: "carol"}, ActionStepReview, "t1", KindTask); err != nil {
		t.Fatalf("manager review denied: %v", err)
	}
}
