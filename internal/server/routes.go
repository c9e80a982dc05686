package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskbase/internal/access"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
)

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations (platform admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Organization `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orgs, err := e.ListOrgs(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Organization `json:"body"`
		}{Body: orgs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		org, err := e.GetOrg(ctx, p, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: org}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}",
		Summary:     "Rename organization",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  UpdateOrgRequest `json:"body"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		org, err := e.UpdateOrg(ctx, p, input.OrgID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: org}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-stats",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/stats",
		Summary:     "Organization statistics",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.OrgStats(ctx, p, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{Stats: stats}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-org-member",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/members",
		Summary:       "Add organization member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string              `path:"org_id"`
		Body  AddOrgMemberRequest `json:"body"`
	}) (*struct {
		Body domain.OrgMember `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddOrgMember(ctx, p, input.OrgID, input.Body.Email, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrgMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org-member",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/members/{user_id}",
		Summary:     "Change a member's organization role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID  string                  `path:"org_id"`
		UserID string                  `path:"user_id"`
		Body   UpdateMemberRoleRequest `json:"body"`
	}) (*struct {
		Body domain.OrgMember `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateOrgMemberRole(ctx, p, input.OrgID, input.UserID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrgMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-org-member",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/members/{user_id}",
		Summary:     "Remove organization member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveOrgMember(ctx, p, input.OrgID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/workspaces",
		Summary:     "List workspaces",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []domain.Workspace `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWorkspaces(ctx, p, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Workspace `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  WorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWorkspace(ctx, p, input.OrgID, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Get workspace",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWorkspace(ctx, p, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Update workspace",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string           `path:"workspace_id"`
		Body        WorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.UpdateWorkspace(ctx, p, input.WorkspaceID, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-workspace",
		Method:      http.MethodDelete,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Delete workspace and its tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkspace(ctx, p, input.WorkspaceID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-stats",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/stats",
		Summary:     "Workspace statistics",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.WorkspaceStats(ctx, p, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{Stats: stats}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-workspace-member",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/members",
		Summary:       "Add workspace member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                    `path:"workspace_id"`
		Body        AddWorkspaceMemberRequest `json:"body"`
	}) (*struct {
		Body domain.WorkspaceMember `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddWorkspaceMember(ctx, p, input.WorkspaceID, input.Body.UserID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace-member-role",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/members/{user_id}",
		Summary:     "Update workspace member role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                  `path:"workspace_id"`
		UserID      string                  `path:"user_id"`
		Body        UpdateMemberRoleRequest `json:"body"`
	}) (*struct {
		Body domain.WorkspaceMember `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateWorkspaceMemberRole(ctx, p, input.WorkspaceID, input.UserID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-workspace-member",
		Method:      http.MethodDelete,
		Path:        "/workspaces/{workspace_id}/members/{user_id}",
		Summary:     "Remove workspace member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		UserID      string `path:"user_id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveWorkspaceMember(ctx, p, input.WorkspaceID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, p, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks",
		Summary:       "Create task with its step sequence",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string           `path:"workspace_id"`
		Body        engine.TaskInput `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, p, input.WorkspaceID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, p, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task metadata",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string           `path:"task_id"`
		Body   engine.TaskInput `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, p, input.TaskID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, p, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/comments",
		Summary:     "List task comments",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListComments(ctx, p, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   CommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, p, input.TaskID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})
}

func registerSteps(api huma.API, e engine.Engine) {
	type stepPath struct {
		TaskID string `path:"task_id"`
		Index  int    `path:"index"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-step",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/steps/{index}/start",
		Summary:     "Start a pending step",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *stepPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.StartStep(ctx, p, input.TaskID, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-step",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/steps/{index}/submit",
		Summary:     "Submit a step for approval",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Index  int               `path:"index"`
		Body   SubmitStepRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SubmitStep(ctx, p, input.TaskID, input.Index, domain.Evidence{Comment: input.Body.Comment})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-step",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/steps/{index}/review",
		Summary:     "Approve or reject a submitted step",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Index  int               `path:"index"`
		Body   ReviewStepRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ReviewStep(ctx, p, input.TaskID, input.Index, input.Body.Approve, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-step",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/steps/{index}/resume",
		Summary:     "Reopen a rejected step",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *stepPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ResumeStep(ctx, p, input.TaskID, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerBilling(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List subscription plans",
	}, func(ctx context.Context, input *struct {
		All bool `query:"all"`
	}) (*struct {
		Body []domain.Plan `json:"body"`
	}, error) {
		items, err := e.ListPlans(ctx, !input.All)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Plan `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/plans",
		Summary:       "Create plan (platform admin)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body PlanRequest `json:"body"`
	}) (*struct {
		Body domain.Plan `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.CreatePlan(ctx, p, domain.Plan{
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			PriceCents:    input.Body.PriceCents,
			Currency:      input.Body.Currency,
			Interval:      input.Body.Interval,
			MaxWorkspaces: input.Body.MaxWorkspaces,
			MaxMembers:    input.Body.MaxMembers,
			Active:        input.Body.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plan `json:"body"`
		}{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-plan",
		Method:      http.MethodPatch,
		Path:        "/plans/{plan_id}",
		Summary:     "Update plan (platform admin)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string      `path:"plan_id"`
		Body   PlanRequest `json:"body"`
	}) (*struct {
		Body domain.Plan `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.UpdatePlan(ctx, p, domain.Plan{
			ID:            input.PlanID,
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			PriceCents:    input.Body.PriceCents,
			Currency:      input.Body.Currency,
			Interval:      input.Body.Interval,
			MaxWorkspaces: input.Body.MaxWorkspaces,
			MaxMembers:    input.Body.MaxMembers,
			Active:        input.Body.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plan `json:"body"`
		}{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-plan",
		Method:      http.MethodDelete,
		Path:        "/plans/{plan_id}",
		Summary:     "Delete plan (platform admin)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePlan(ctx, p, input.PlanID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-subscription",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/subscription",
		Summary:     "Current subscription",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body domain.Subscription `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := e.GetSubscription(ctx, p, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subscription `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-subscription",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/subscription",
		Summary:     "Cancel subscription",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body domain.Subscription `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := e.CancelSubscription(ctx, p, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subscription `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/orders",
		Summary:       "Open a payment order for a plan",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string             `path:"org_id"`
		Body  CreateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentOrder `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		order, err := e.CreateOrder(ctx, p, input.OrgID, input.Body.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentOrder `json:"body"`
		}{Body: order}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-payment",
		Method:      http.MethodPost,
		Path:        "/payments/verify",
		Summary:     "Verify a checkout payment and activate the subscription",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body VerifyPaymentRequest `json:"body"`
	}) (*struct {
		Body domain.Subscription `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := e.VerifyPayment(ctx, p, input.Body.OrderRef, input.Body.PaymentID, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subscription `json:"body"`
		}{Body: sub}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "Organization audit log",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// The audit log shares the org-admin requirement with stats.
		if err := e.Gate.Authorize(ctx, p, access.ActionOrgStats, input.OrgID, access.KindOrganization); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.Events(ctx, input.Limit, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
