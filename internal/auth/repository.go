package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, role, token_version, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, FALSE, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (User, error) {
	return r.userBy(ctx, `email = $1`, email)
}

func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	return r.userBy(ctx, `id = $1`, id)
}

// UserByResetToken only matches a pending, unexpired reset token.
func (r *Repository) UserByResetToken(ctx context.Context, token string) (User, error) {
	return r.userBy(ctx, `reset_token = $1 AND reset_token_expiry > NOW()`, token)
}

func (r *Repository) userBy(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, role, token_version, email_verified, created_at
		FROM users
		WHERE `+where, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.TokenVersion,
		&user.EmailVerified,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

func (r *Repository) InsertRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, revoked, expires_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, id.String(), userID, token, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *Repository) RefreshTokenByValue(ctx context.Context, token string) (RefreshToken, error) {
	var row RefreshToken
	var replacedBy sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, revoked, replaced_by_token, expires_at
		FROM refresh_tokens
		WHERE token = $1
	`, token).Scan(&row.ID, &row.UserID, &row.Token, &row.Revoked, &replacedBy, &row.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, ErrRefreshTokenNotFound
		}
		return RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	if replacedBy.Valid {
		row.ReplacedByToken = &replacedBy.String
	}

	return row, nil
}

// RotateRefreshToken is the single write that decides a rotation race. The
// WHERE clause only matches an unrevoked row, so concurrent redemptions of
// the same token produce exactly one affected row across all callers.
func (r *Repository) RotateRefreshToken(ctx context.Context, oldToken, newToken string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, replaced_by_token = $2
		WHERE token = $1 AND revoked = FALSE
	`, oldToken, newToken)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, token, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND user_id = $2
	`, token, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}

	return nil
}

func (r *Repository) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET token_version = token_version + 1
		WHERE id = $1
		RETURNING token_version
	`, userID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("increment token version: %w", err)
	}

	return version, nil
}

func (r *Repository) SetResetToken(ctx context.Context, email, token string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token = $2, reset_token_expiry = $3
		WHERE email = $1
	`, email, token, expiry.UTC())
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	return nil
}

func (r *Repository) ConsumePasswordReset(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, reset_token = NULL, reset_token_expiry = NULL
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("consume password reset: %w", err)
	}

	return nil
}

func (r *Repository) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified = TRUE
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	return nil
}

// ClearExpiredResetTokens drops stale pending resets. Used by the
// maintenance endpoint; refresh_tokens rows are deliberately left alone.
func (r *Repository) ClearExpiredResetTokens(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token = NULL, reset_token_expiry = NULL
		WHERE reset_token IS NOT NULL AND reset_token_expiry < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired reset tokens rows affected: %w", err)
	}

	return affected, nil
}
