package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass selects which secret signs a token. Each class has its own
// secret so a leaked access secret cannot forge refresh or reset tokens.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
	TokenClassReset   TokenClass = "reset"
)

var (
	// ErrTokenInvalid is returned when a token fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned when a token is past its exp claim. Handlers
	// surface it identically to ErrTokenInvalid; the distinction is for logs.
	ErrTokenExpired = errors.New("token expired")
)

type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	ResetSecret   string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

func (c CodecConfig) validate() error {
	if c.AccessSecret == "" {
		return errors.New("codec: access secret is required")
	}
	if c.RefreshSecret == "" {
		return errors.New("codec: refresh secret is required")
	}
	if c.ResetSecret == "" {
		return errors.New("codec: reset secret is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		return errors.New("codec: token TTLs must be positive")
	}
	return nil
}

// Claims is the verified identity a token carries.
type Claims struct {
	UserID       string
	TokenVersion int
}

// Codec signs and verifies the three token classes. It is stateless and
// never consults the store.
type Codec struct {
	cfg CodecConfig
}

// NewCodec validates the configuration up front so a missing secret aborts
// startup instead of silently producing unverifiable tokens.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }
func (c *Codec) ResetTTL() time.Duration   { return c.cfg.ResetTTL }

// IssuePair signs an access and a refresh token embedding the user id and
// its current token version.
func (c *Codec) IssuePair(userID string, tokenVersion int) (access, refresh string, err error) {
	access, err = c.sign(TokenClassAccess, userID, tokenVersion, c.cfg.AccessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = c.sign(TokenClassRefresh, userID, tokenVersion, c.cfg.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// IssueResetToken signs a short-lived password-reset token. Reset tokens
// carry no version claim; they are checked against the stored copy instead.
func (c *Codec) IssueResetToken(userID string) (string, error) {
	return c.sign(TokenClassReset, userID, 0, c.cfg.ResetTTL)
}

func (c *Codec) sign(class TokenClass, userID string, tokenVersion int, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": string(class),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if class != TokenClassReset {
		claims["ver"] = tokenVersion
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret(class))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}
	return encoded, nil
}

// Verify checks signature, expiry and class. It is purely cryptographic.
func (c *Codec) Verify(tokenStr string, class TokenClass) (Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return c.secret(class), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	if typ, _ := claims["typ"].(string); typ != string(class) {
		return Claims{}, ErrTokenInvalid
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, ErrTokenInvalid
	}

	out := Claims{UserID: sub}
	if class != TokenClassReset {
		ver, ok := claims["ver"].(float64)
		if !ok {
			return Claims{}, ErrTokenInvalid
		}
		out.TokenVersion = int(ver)
	}

	return out, nil
}

func (c *Codec) secret(class TokenClass) []byte {
	switch class {
	case TokenClassRefresh:
		return []byte(c.cfg.RefreshSecret)
	case TokenClassReset:
		return []byte(c.cfg.ResetSecret)
	default:
		return []byte(c.cfg.AccessSecret)
	}
}
