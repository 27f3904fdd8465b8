package auth

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Role          string
	TokenVersion  int
	EmailVerified bool
	CreatedAt     time.Time
}

// RefreshToken mirrors a refresh_tokens row. Rows are never deleted; a
// rotated token keeps pointing at its successor via ReplacedByToken.
type RefreshToken struct {
	ID              string
	UserID          string
	Token           string
	Revoked         bool
	ReplacedByToken *string
	ExpiresAt       time.Time
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile is the shape returned by /me and /profile.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}
