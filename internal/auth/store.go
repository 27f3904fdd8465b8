package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user row matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registration hits the unique email
	// constraint.
	ErrEmailTaken = errors.New("email already registered")

	// ErrRefreshTokenNotFound is returned when no refresh_tokens row matches
	// the presented token string.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// Store is the credential-store contract the session service depends on.
// It is satisfied by the Postgres Repository in production and by an
// in-memory fake in tests. Every method is a single store round-trip;
// coordination between concurrent requests happens inside the store.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	InsertRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	RefreshTokenByValue(ctx context.Context, token string) (RefreshToken, error)

	// RotateRefreshToken marks oldToken revoked and points it at newToken,
	// but only if it is still unrevoked. The returned bool reports whether
	// this call won the rotation: the update is conditional on
	// revoked = FALSE, so of two concurrent redemptions exactly one
	// observes an affected row.
	RotateRefreshToken(ctx context.Context, oldToken, newToken string) (bool, error)

	// RevokeRefreshToken revokes the matching row without a successor.
	// Revoking an already-revoked or unknown token is a no-op.
	RevokeRefreshToken(ctx context.Context, token, userID string) error

	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	// IncrementTokenVersion bumps users.token_version by one and returns the
	// new value. The bump is durable once this returns.
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)

	// SetResetToken stores a pending password-reset token on the user row.
	// Unknown emails are a silent no-op.
	SetResetToken(ctx context.Context, email, token string, expiry time.Time) error

	// UserByResetToken finds the user holding an unexpired reset token.
	UserByResetToken(ctx context.Context, token string) (User, error)

	// ConsumePasswordReset sets the new password hash and clears the stored
	// reset token and expiry in one statement.
	ConsumePasswordReset(ctx context.Context, userID, passwordHash string) error

	MarkEmailVerified(ctx context.Context, userID string) error
}
