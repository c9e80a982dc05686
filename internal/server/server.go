package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskbase/internal/access"
	"taskbase/internal/blob"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
	"taskbase/internal/flow"
	"taskbase/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Uploads  *blob.Store
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role cannot perform this action"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every failure response uses.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskbase API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taskbase API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg)
	registerOrgs(group, cfg.Engine)
	registerWorkspaces(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerSteps(group, cfg.Engine)
	registerBilling(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerUploads(router, basePath, cfg)
	registerWebhook(router, basePath, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the wire envelope. Membership and
// role denials are both 403; a deny is never a 500.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var notMember access.NotAMemberError
	if errors.As(err, &notMember) {
		return newAPIError(http.StatusForbidden, "not_a_member", err.Error(), map[string]any{"resource_id": notMember.ResourceID})
	}
	var forbidden access.ForbiddenError
	if errors.As(err, &forbidden) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": string(forbidden.Action)})
	}
	var transition flow.InvalidTransitionError
	if errors.As(err, &transition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": string(transition.From), "to": string(transition.To),
		})
	}
	var sequence flow.SequenceError
	if errors.As(err, &sequence) {
		return newAPIError(http.StatusConflict, "sequence_blocked", err.Error(), map[string]any{"blocked_by": sequence.Blocked})
	}
	var validation flow.ValidationError
	if errors.As(err, &validation) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"requirement": string(validation.Requirement)})
	}
	var selfReview flow.SelfReviewError
	if errors.As(err, &selfReview) {
		return newAPIError(http.StatusUnprocessableEntity, "self_review", err.Error(), nil)
	}
	var badType blob.InvalidTypeError
	if errors.As(err, &badType) {
		return newAPIError(http.StatusBadRequest, "invalid_file_type", err.Error(), map[string]any{"mime_type": badType.MimeType})
	}
	var tooLarge blob.TooLargeError
	if errors.As(err, &tooLarge) {
		return newAPIError(http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), map[string]any{"limit": tooLarge.Limit})
	}
	switch {
	case errors.Is(err, engine.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, engine.ErrEmailTaken):
		return newAPIError(http.StatusConflict, "email_taken", err.Error(), nil)
	case errors.Is(err, engine.ErrBadSignature):
		return newAPIError(http.StatusBadRequest, "bad_signature", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "required") || strings.Contains(lowered, "must") || strings.Contains(lowered, "invalid") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a new organization and admin user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		res, err := e.Register(ctx, input.Body.Name, input.Body.Email, input.Body.Password, input.Body.OrgName)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := IssueToken(cfg.Auth, res.User.ID, res.User.Role, res.User.OrgID, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: res.User}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		user, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := IssueToken(cfg.Auth, user.ID, user.Role, user.OrgID, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-email",
		Method:      http.MethodPost,
		Path:        "/auth/verify-email",
		Summary:     "Verify email address",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body VerifyEmailRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		user, err := e.VerifyEmail(ctx, input.Body.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forgot-password",
		Method:      http.MethodPost,
		Path:        "/auth/forgot-password",
		Summary:     "Request a password reset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ForgotPasswordRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := e.ForgotPassword(ctx, input.Body.Email); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "sent"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-password",
		Method:      http.MethodPost,
		Path:        "/auth/reset-password",
		Summary:     "Reset password with a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ResetPasswordRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := e.ResetPassword(ctx, input.Body.Token, input.Body.Password); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "reset"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := e.Repo.GetUser(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update name and email",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UpdateDetailsRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := e.UpdateDetails(ctx, p.UserID, input.Body.Name, input.Body.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-password",
		Method:      http.MethodPost,
		Path:        "/me/password",
		Summary:     "Change password",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpdatePasswordRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdatePassword(ctx, p.UserID, input.Body.CurrentPassword, input.Body.NewPassword); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "updated"}}, nil
	})
}

// registerUploads wires the evidence upload endpoint and static serving of
// stored files. Uploads go through the auth middleware; serving is public.
func registerUploads(router chi.Router, basePath string, cfg Config) {
	router.Post(basePath+"/tasks/{task_id}/steps/{index}/evidence", func(w http.ResponseWriter, r *http.Request) {
		p, authErr := principalFromContext(r.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		if cfg.Uploads == nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "uploads not configured", nil))
			return
		}
		idx, err := stepIndex(chi.URLParam(r, "index"))
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid step index", nil))
			return
		}
		if err := r.ParseMultipartForm(cfg.Uploads.MaxSizeBytes + 1); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid multipart body", nil))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field is required", nil))
			return
		}
		defer file.Close()
		stored, err := cfg.Uploads.Save("file", header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		task, err := cfg.Engine.AttachEvidence(r.Context(), p, chi.URLParam(r, "task_id"), idx, domain.Evidence{
			FileURL:    stored.URL,
			FileType:   stored.MimeType,
			FileName:   stored.FileName,
			UploadedAt: stored.UploadedAt,
			Comment:    r.FormValue("comment"),
		})
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusOK, task)
	})

	router.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.Uploads.Dir))))
}

// registerWebhook accepts gateway payment notifications. The route is
// public; the body signature is the authentication.
func registerWebhook(router chi.Router, basePath string, e engine.Engine) {
	router.Post(basePath+"/payments/webhook", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "unreadable body", nil))
			return
		}
		sig := r.Header.Get("X-Webhook-Signature")
		if err := e.HandleWebhook(r.Context(), body, sig); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func stepIndex(raw string) (int, error) {
	return strconv.Atoi(raw)
}
