package access

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"member":      RoleMember,
		"manager":     RoleManager,
		"admin":       RoleAdmin,
		"super_admin": RoleSuperAdmin,
		"":            RoleNone,
		"owner":       RoleNone,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRoleOrdering(t *testing.T) {
	order := []Role{RoleNone, RoleMember, RoleManager, RoleAdmin, RoleSuperAdmin}
	for i, lower := range order {
		for _, higher := range order[i:] {
			if !higher.AtLeast(lower) {
				t.Errorf("%v should rank at least %v", higher, lower)
			}
		}
	}
	if RoleMember.AtLeast(RoleAdmin) {
		t.Error("member must not rank admin")
	}
}

func TestCanPerformGrantsMonotonically(t *testing.T) {
	// A grant at some rank implies a grant at every higher rank.
	roles := []Role{RoleNone, RoleMember, RoleManager, RoleAdmin, RoleSuperAdmin}
	for action := range minRole {
		granted := false
		for _, r := range roles {
			got := CanPerform(r, action)
			if granted && !got {
				t.Errorf("%s: grant lost at %v", action, r)
			}
			granted = granted || got
		}
		if !granted {
			t.Errorf("%s: never granted", action)
		}
	}
}

func TestCanPerformDeniesUnknownAction(t *testing.T) {
	if CanPerform(RoleSuperAdmin, Action("nonsense")) {
		t.Error("unknown actions must deny even for super_admin")
	}
	if CanPerform(RoleNone, ActionOrgView) {
		t.Error("RoleNone must deny everything")
	}
}

func TestPlatformActionsNeedSuperAdmin(t *testing.T) {
	for _, action := range []Action{ActionOrgList, ActionPlanManage} {
		if CanPerform(RoleAdmin, action) {
			t.Errorf("%s must not be granted to org admins", action)
		}
		if !CanPerform(RoleSuperAdmin, action) {
			t.Errorf("%s must be granted to super_admin", action)
		}
	}
}

func TestCanReviewIsExactlyManagerOrAdmin(t *testing.T) {
	cases := map[Role]bool{
		RoleNone:       false,
		RoleMember:     false,
		RoleManager:    true,
		RoleAdmin:      true,
		RoleSuperAdmin: false,
	}
	for role, want := range cases {
		if got := CanReview(role); got != want {
			t.Errorf("CanReview(%v) = %v, want %v", role, got, want)
		}
	}
}
