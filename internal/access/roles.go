package access

// Role is the closed set of membership roles, ordered by authority.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleManager
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleNone:       "",
	RoleMember:     "member",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

func (r Role) String() string { return roleNames[r] }

// ParseRole maps a stored role string to its rank. Unknown or empty
// strings rank as RoleNone, which every action denies.
func ParseRole(s string) Role {
	switch s {
	case "member":
		return RoleMember
	case "manager":
		return RoleManager
	case "admin":
		return RoleAdmin
	case "super_admin":
		return RoleSuperAdmin
	}
	return RoleNone
}

// AtLeast reports whether r carries at least the authority of min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// Action is the closed set of operations the gate can decide on.
type Action string

const (
	ActionOrgView            Action = "org.view"
	ActionOrgUpdate          Action = "org.update"
	ActionOrgManageMembers   Action = "org.members.manage"
	ActionOrgStats           Action = "org.stats"
	ActionOrgList            Action = "org.list"
	ActionSubscriptionManage Action = "subscription.manage"
	ActionPlanManage         Action = "plan.manage"

	ActionWorkspaceView          Action = "workspace.view"
	ActionWorkspaceCreate        Action = "workspace.create"
	ActionWorkspaceUpdate        Action = "workspace.update"
	ActionWorkspaceDelete        Action = "workspace.delete"
	ActionWorkspaceManageMembers Action = "workspace.members.manage"

	ActionTaskView    Action = "task.view"
	ActionTaskCreate  Action = "task.create"
	ActionTaskUpdate  Action = "task.update"
	ActionTaskDelete  Action = "task.delete"
	ActionStepAdvance Action = "step.advance"
	ActionStepReview  Action = "step.review"
	ActionCommentAdd  Action = "comment.add"
)

// minRole declares the minimum effective role per action. Actions absent
// from the table are denied for every role.
var minRole = map[Action]Role{
	ActionOrgView:            RoleMember,
	ActionOrgUpdate:          RoleAdmin,
	ActionOrgManageMembers:   RoleAdmin,
	ActionOrgStats:           RoleAdmin,
	ActionOrgList:            RoleSuperAdmin,
	ActionSubscriptionManage: RoleAdmin,
	ActionPlanManage:         RoleSuperAdmin,

	ActionWorkspaceView:          RoleMember,
	ActionWorkspaceCreate:        RoleAdmin,
	ActionWorkspaceUpdate:        RoleAdmin,
	ActionWorkspaceDelete:        RoleAdmin,
	ActionWorkspaceManageMembers: RoleAdmin,

	ActionTaskView:    RoleMember,
	ActionTaskCreate:  RoleManager,
	ActionTaskUpdate:  RoleMember,
	ActionTaskDelete:  RoleAdmin,
	ActionStepAdvance: RoleMember,
	ActionStepReview:  RoleManager,
	ActionCommentAdd:  RoleMember,
}

// CanPerform grants an action iff the role ranks at least the action's
// minimum. Pure and total: unknown actions and RoleNone always deny.
func CanPerform(role Role, action Action) bool {
	min, ok := minRole[action]
	if !ok {
		return false
	}
	return role.AtLeast(min)
}

// CanReview reports reviewer authority for step sign-off. Review is a
// workspace-internal check: it needs exactly manager or admin standing,
// the global super_admin override does not apply here.
func CanReview(role Role) bool {
	return role == RoleManager || role == RoleAdmin
}
