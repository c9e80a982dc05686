// Package app assembles the engine and its collaborators from config,
// and seeds the platform-level records a fresh install needs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskbase/internal/blob"
	"taskbase/internal/config"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
	"taskbase/internal/mail"
	"taskbase/internal/payment"
	"taskbase/internal/repo"
)

// Build wires an engine with mail and payment collaborators taken from
// config. Either collaborator stays nil when its section is unconfigured;
// the engine degrades gracefully without them.
func Build(conn *sql.DB, cfg *config.Config) engine.Engine {
	e := engine.New(conn, cfg)
	if cfg.SMTP.Host != "" {
		e.Mail = mail.Service{
			Mailer: mail.SMTPSender{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				User:     cfg.SMTP.User,
				Password: cfg.SMTP.Password,
				FromName: cfg.SMTP.FromName,
				From:     cfg.SMTP.From,
			},
			FrontendURL: cfg.Auth.FrontendURL,
		}
	}
	if cfg.Payment.KeyID != "" {
		e.Payment = payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.WebhookSecret)
	}
	return e
}

// BlobStore builds the evidence store with the uploads directory resolved
// relative to the workspace.
func BlobStore(workspace string, cfg *config.Config) *blob.Store {
	dir := cfg.Uploads.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}
	return blob.NewStore(dir, cfg.Uploads.MaxSizeBytes, cfg.Uploads.AllowedTypes)
}

// EnsureSuperAdmin creates the platform operator account if it does not
// exist. An existing account with the same email must already hold the
// super_admin role; anything else is a config mistake, not ours to fix.
func EnsureSuperAdmin(ctx context.Context, e engine.Engine, name, email, password string) (domain.User, error) {
	existing, err := e.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		if existing.Role != "super_admin" {
			return domain.User{}, fmt.Errorf("user %s exists with role %s", email, existing.Role)
		}
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	if len(password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:            uuid.New().String(),
		Name:          name,
		Email:         email,
		PasswordHash:  string(hash),
		Role:          "super_admin",
		EmailVerified: true,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, user); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// SeedDefaultPlans inserts the stock plan catalog when no plans exist.
// Idempotent so it can run on every startup.
func SeedDefaultPlans(ctx context.Context, e engine.Engine) error {
	plans, err := e.Repo.ListPlans(ctx, false)
	if err != nil {
		return err
	}
	if len(plans) > 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	defaults := []domain.Plan{
		{Name: "Starter", Description: "For small teams getting started", PriceCents: 0, Currency: "USD", Interval: "monthly", MaxWorkspaces: 1, MaxMembers: 5, Active: true},
		{Name: "Team", Description: "Growing teams with several workspaces", PriceCents: 4900, Currency: "USD", Interval: "monthly", MaxWorkspaces: 10, MaxMembers: 50, Active: true},
		{Name: "Business", Description: "Unlimited workspaces and members", PriceCents: 49900, Currency: "USD", Interval: "yearly", MaxWorkspaces: 0, MaxMembers: 0, Active: true},
	}
	for _, p := range defaults {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		if err := e.Repo.InsertPlan(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
