package domain

type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	PasswordHash  string `json:"-"`
	Role          string `json:"role" enum:"member,manager,admin,super_admin"`
	OrgID         string `json:"org_id,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Organization struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Members   []OrgMember `json:"members,omitempty"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}

type OrgMember struct {
	OrgID    string `json:"org_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role" enum:"member,manager,admin,super_admin"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

type Workspace struct {
	ID          string            `json:"id"`
	OrgID       string            `json:"org_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Members     []WorkspaceMember `json:"members,omitempty"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
}

type WorkspaceMember struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role" enum:"member,manager,admin"`
	JoinedAt    string `json:"joined_at" format:"date-time"`
}

// TaskStatus is derived from step statuses, never stored independently.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

type Task struct {
	ID               string     `json:"id"`
	WorkspaceID      string     `json:"workspace_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           TaskStatus `json:"status" enum:"not_started,in_progress,completed"`
	Priority         string     `json:"priority,omitempty" enum:"low,medium,high"`
	AssigneeID       *string    `json:"assignee_id,omitempty"`
	CreatedBy        string     `json:"created_by"`
	DueDate          *string    `json:"due_date,omitempty" format:"date-time"`
	IndependentSteps bool       `json:"independent_steps"`
	Steps            []Step     `json:"steps"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
}

type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepInProgress  StepStatus = "in_progress"
	StepSubmitted   StepStatus = "submitted"
	StepUnderReview StepStatus = "under_review"
	StepApproved    StepStatus = "approved"
	StepRejected    StepStatus = "rejected"
)

// Requirement declares what evidence a step needs before it can be approved.
type Requirement string

const (
	RequireNone     Requirement = "none"
	RequireFile     Requirement = "file"
	RequireApproval Requirement = "approval"
)

type Step struct {
	TaskID      string      `json:"task_id"`
	Index       int         `json:"index"`
	Description string      `json:"description"`
	Requirement Requirement `json:"requirement" enum:"none,file,approval"`
	Status      StepStatus  `json:"status" enum:"pending,in_progress,submitted,under_review,approved,rejected"`
	Evidence    *Evidence   `json:"evidence,omitempty"`
	ReviewerID  *string     `json:"reviewer_id,omitempty"`
	ReviewNote  *string     `json:"review_note,omitempty"`
}

// Evidence is the file and/or comment attached to satisfy a step requirement.
type Evidence struct {
	FileURL    string `json:"file_url,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty" format:"date-time"`
	Comment    string `json:"comment,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Plan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval" enum:"monthly,yearly"`
	MaxWorkspaces int    `json:"max_workspaces"`
	MaxMembers    int    `json:"max_members"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Subscription struct {
	ID               string `json:"id"`
	OrgID            string `json:"org_id"`
	PlanID           string `json:"plan_id"`
	Status           string `json:"status" enum:"active,past_due,canceled"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty" format:"date-time"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

type PaymentOrder struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	PlanID      string `json:"plan_id"`
	GatewayRef  string `json:"gateway_ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status" enum:"created,paid,failed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
