package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"budget-api/internal/observability"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login responses cannot be used to enumerate users.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken covers every way a refresh can fail: bad
	// signature, expired, unknown row, revoked, rotation lost, or token
	// version mismatch. Clients get a uniform 403.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidResetToken is returned for expired, mismatched, or already
	// consumed password-reset tokens.
	ErrInvalidResetToken = errors.New("invalid reset token")
)

// Service orchestrates registration, login, refresh rotation, logout, and
// mass invalidation. All shared state lives in the Store; the service itself
// holds no mutable state and is safe for concurrent use.
type Service struct {
	store  Store
	codec  *Codec
	logger *observability.Logger
}

func NewService(store Store, codec *Codec, logger *observability.Logger) *Service {
	return &Service{store: store, codec: codec, logger: logger}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.store.CreateUser(ctx, name, email, string(hash))
}

func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, User, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, User{}, ErrInvalidCredentials
		}
		return TokenPair{}, User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}

	access, refresh, err := s.codec.IssuePair(user.ID, user.TokenVersion)
	if err != nil {
		return TokenPair{}, User{}, err
	}

	expiresAt := time.Now().UTC().Add(s.codec.RefreshTTL())
	if err := s.store.InsertRefreshToken(ctx, user.ID, refresh, expiresAt); err != nil {
		return TokenPair{}, User{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, user, nil
}

// Refresh redeems a refresh token for a fresh pair, advancing the rotation
// chain by one link. Concurrent redemptions of the same token are decided by
// the store's conditional revoke: the loser fails ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, oldToken string) (TokenPair, error) {
	claims, err := s.codec.Verify(oldToken, TokenClassRefresh)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	row, err := s.store.RefreshTokenByValue(ctx, oldToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	if row.UserID != claims.UserID || row.Revoked || !row.ExpiresAt.After(time.Now().UTC()) {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	// The single mechanism that makes logout-all retroactive.
	if user.TokenVersion != claims.TokenVersion {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	access, refresh, err := s.codec.IssuePair(user.ID, user.TokenVersion)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := s.store.RotateRefreshToken(ctx, oldToken, refresh)
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		// Lost the race to a concurrent redemption.
		return TokenPair{}, ErrInvalidRefreshToken
	}

	expiresAt := time.Now().UTC().Add(s.codec.RefreshTTL())
	if err := s.store.InsertRefreshToken(ctx, user.ID, refresh, expiresAt); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes one refresh token. Revoking an already-revoked or unknown
// token succeeds.
func (s *Service) Logout(ctx context.Context, refreshToken, userID string) error {
	return s.store.RevokeRefreshToken(ctx, refreshToken, userID)
}

// LogoutAll revokes every active refresh token for the user and bumps the
// token version. The two writes are not wrapped in a transaction: a refresh
// racing between them may still win once with the old version, and is then
// rejected on its next redemption.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return err
	}

	_, err := s.store.IncrementTokenVersion(ctx, userID)
	return err
}

// RequestPasswordReset issues and stores a reset token. The token is handed
// to the mail hook (currently a structured log line), never to the caller.
// Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.codec.IssueResetToken(user.ID)
	if err != nil {
		return err
	}

	expiry := time.Now().UTC().Add(s.codec.ResetTTL())
	if err := s.store.SetResetToken(ctx, email, token, expiry); err != nil {
		return err
	}

	// Mail delivery stub.
	s.logger.Info("password_reset_token_issued", map[string]any{
		"email":       email,
		"reset_token": token,
		"expires_at":  expiry.Format(time.RFC3339),
	})

	return nil
}

// ResetPassword consumes a pending reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := s.codec.Verify(resetToken, TokenClassReset)
	if err != nil {
		return ErrInvalidResetToken
	}

	user, err := s.store.UserByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if user.ID != claims.UserID {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.ConsumePasswordReset(ctx, user.ID, string(hash))
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (Profile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	return Profile{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, userID string) error {
	return s.store.MarkEmailVerified(ctx, userID)
}
