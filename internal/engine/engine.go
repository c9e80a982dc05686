package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskbase/internal/access"
	"taskbase/internal/config"
	"taskbase/internal/domain"
	"taskbase/internal/events"
	"taskbase/internal/mail"
	"taskbase/internal/payment"
	"taskbase/internal/repo"
)

// ErrInvalidCredentials is returned for bad email/password pairs and
// invalid or expired tokens, without distinguishing which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailTaken is returned when registering with an existing email.
var ErrEmailTaken = errors.New("email already registered")

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Gate    access.Gate
	Config  *config.Config
	Mail    mail.Service
	Payment payment.Gateway
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Gate:   access.NewGate(r),
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// RegisterResult carries what the register flow produced. VerifyToken is
// also mailed; it is returned for clients that disable mail delivery.
type RegisterResult struct {
	User        domain.User
	Org         domain.Organization
	VerifyToken string
}

// Register signs up a tenant: a new organization plus its first user,
// who becomes the organization admin. Sends verification and welcome mail.
func (e Engine) Register(ctx context.Context, name, email, password, orgName string) (RegisterResult, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return RegisterResult{}, errors.New("name and email are required")
	}
	if len(password) < 8 {
		return RegisterResult{}, errors.New("password must be at least 8 characters")
	}
	if strings.TrimSpace(orgName) == "" {
		return RegisterResult{}, errors.New("organization name is required")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return RegisterResult{}, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return RegisterResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterResult{}, err
	}
	now := e.nowStr()
	org := domain.Organization{ID: uuid.New().String(), Name: orgName, CreatedAt: now}
	user := domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         "admin",
		OrgID:        org.ID,
		CreatedAt:    now,
	}
	verifyToken := newToken()
	verifyExpires := e.now().Add(time.Duration(e.Config.Auth.VerifyTTLHours) * time.Hour).UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return RegisterResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrg(ctx, tx, org); err != nil {
		return RegisterResult{}, fmt.Errorf("insert organization: %w", err)
	}
	if err := e.Repo.InsertUser(ctx, tx, user); err != nil {
		return RegisterResult{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Repo.UpsertOrgMember(ctx, tx, domain.OrgMember{
		OrgID: org.ID, UserID: user.ID, Role: "admin", JoinedAt: now,
	}); err != nil {
		return RegisterResult{}, err
	}
	if err := e.Repo.SetVerifyToken(ctx, tx, user.ID, repo.HashToken(verifyToken), verifyExpires); err != nil {
		return RegisterResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.registered", org.ID, "organization", org.ID, user.ID, events.EventPayload{"name": org.Name}); err != nil {
		return RegisterResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return RegisterResult{}, err
	}
	e.Mail.Send(mail.KindVerification, user.Email, mail.Vars{Token: verifyToken})
	e.Mail.Send(mail.KindWelcome, user.Email, mail.Vars{Name: user.Name})
	org.Members = []domain.OrgMember{{OrgID: org.ID, UserID: user.ID, Role: "admin", JoinedAt: now}}
	return RegisterResult{User: user, Org: org, VerifyToken: verifyToken}, nil
}

// Login checks the password and returns the user. Token issuance is the
// caller's concern.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, error) {
	user, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyEmail consumes an unexpired verification token.
func (e Engine) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	userID, err := e.Repo.VerifyUserByToken(ctx, repo.HashToken(token), e.nowStr())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// ForgotPassword issues a short-lived reset token and mails it.
func (e Engine) ForgotPassword(ctx context.Context, email string) error {
	user, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	token := newToken()
	expires := e.now().Add(time.Duration(e.Config.Auth.ResetTTLMinutes) * time.Minute).UTC().Format(time.RFC3339)
	if err := e.Repo.SetResetToken(ctx, user.ID, repo.HashToken(token), expires); err != nil {
		return err
	}
	e.Mail.Send(mail.KindPasswordReset, user.Email, mail.Vars{Token: token})
	return nil
}

// ResetPassword consumes an unexpired reset token and sets the new password.
func (e Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = e.Repo.ResetPasswordByToken(ctx, repo.HashToken(token), string(hash), e.nowStr())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidCredentials
	}
	return err
}

func (e Engine) UpdateDetails(ctx context.Context, userID, name, email string) (domain.User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return domain.User{}, errors.New("name and email are required")
	}
	if err := e.Repo.UpdateUserDetails(ctx, userID, name, email); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

func (e Engine) UpdatePassword(ctx context.Context, userID, current, updated string) error {
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(updated) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(updated), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return e.Repo.UpdateUserPassword(ctx, userID, string(hash))
}

// PrincipalFor builds the access principal for a user id, reading the
// account-level role fresh from storage.
func (e Engine) PrincipalFor(ctx context.Context, userID string) (access.Principal, error) {
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return access.Principal{}, err
	}
	return access.Principal{UserID: user.ID, Role: access.ParseRole(user.Role)}, nil
}
