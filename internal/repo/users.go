package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"taskbase/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for verification and
// password-reset tokens; only the digest is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

const userCols = `id,name,email,password_hash,role,COALESCE(org_id,''),email_verified,created_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var verified int
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.OrgID, &verified, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.EmailVerified = verified != 0
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	verified := 0
	if u.EmailVerified {
		verified = 1
	}
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO users(id,name,email,password_hash,role,org_id,email_verified,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullable(u.OrgID), verified, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email))
}

func (r Repo) UpdateUserDetails(ctx context.Context, id, name, email string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET name=?,email=? WHERE id=?`, name, email, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerifyToken stores the hashed email-verification token and its expiry.
func (r Repo) SetVerifyToken(ctx context.Context, tx *sql.Tx, userID, tokenHash, expiresAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE users SET verify_token_hash=?,verify_expires_at=? WHERE id=?`,
		tokenHash, expiresAt, userID)
	return err
}

// VerifyUserByToken marks the matching user verified and clears the token.
// Returns the user id, or ErrNotFound when no unexpired token matches.
func (r Repo) VerifyUserByToken(ctx context.Context, tokenHash, now string) (string, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id FROM users WHERE verify_token_hash=? AND verify_expires_at>?`, tokenHash, now)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email_verified=1,verify_token_hash=NULL,verify_expires_at=NULL WHERE id=?`, id)
	return id, err
}

func (r Repo) SetResetToken(ctx context.Context, userID, tokenHash, expiresAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE users SET reset_token_hash=?,reset_expires_at=? WHERE id=?`,
		tokenHash, expiresAt, userID)
	return err
}

// ResetPasswordByToken swaps the password for the user holding an
// unexpired reset token and clears the token.
func (r Repo) ResetPasswordByToken(ctx context.Context, tokenHash, passwordHash, now string) (string, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id FROM users WHERE reset_token_hash=? AND reset_expires_at>?`, tokenHash, now)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?,reset_token_hash=NULL,reset_expires_at=NULL WHERE id=?`, passwordHash, id)
	return id, err
}
