package server

import "taskbase/internal/domain"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	OrgName  string `json:"org_name"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the session token and the authenticated user.
type AuthResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" format:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password" minLength:"8"`
}

type UpdateDetailsRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" minLength:"8"`
}

type UpdateOrgRequest struct {
	Name string `json:"name"`
}

type AddOrgMemberRequest struct {
	Email string `json:"email" format:"email"`
	Role  string `json:"role" enum:"member,manager,admin"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" enum:"member,manager,admin"`
}

type WorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddWorkspaceMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"member,manager,admin"`
}

type SubmitStepRequest struct {
	Comment string `json:"comment,omitempty"`
}

type ReviewStepRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

type CommentRequest struct {
	Body string `json:"body"`
}

type PlanRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval" enum:"monthly,yearly"`
	MaxWorkspaces int    `json:"max_workspaces,omitempty"`
	MaxMembers    int    `json:"max_members,omitempty"`
	Active        bool   `json:"active"`
}

type CreateOrderRequest struct {
	PlanID string `json:"plan_id"`
}

type VerifyPaymentRequest struct {
	OrderRef  string `json:"order_ref"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type StatsResponse struct {
	Stats map[string]int `json:"stats"`
}
