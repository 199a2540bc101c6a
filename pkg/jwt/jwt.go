package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingKey   = errors.New("signing secret is empty")
)

// UserClaim is the embedded user object some clients carry in their tokens.
// Older tokens use "_id" instead of "id".
type UserClaim struct {
	ID    string `json:"id,omitempty"`
	AltID string `json:"_id,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Claims represents JWT claims. Identity can arrive through any of the
// User, UserID or BareID fields depending on which client issued the token.
type Claims struct {
	jwt.RegisteredClaims
	User   *UserClaim `json:"user,omitempty"`
	UserID string     `json:"userId,omitempty"`
	BareID string     `json:"id,omitempty"`
	Roles  []string   `json:"roles,omitempty"`
}

// Manager signs and validates HS256 tokens.
type Manager struct {
	secret         []byte
	issuer         string
	accessDuration time.Duration
	leeway         time.Duration
}

// NewManager creates a new JWT manager.
func NewManager(secret, issuer string, accessDuration, leeway time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	return &Manager{
		secret:         []byte(secret),
		issuer:         issuer,
		accessDuration: accessDuration,
		leeway:         leeway,
	}, nil
}

// GenerateToken issues an access token for the given claims. Registered
// claims left empty are filled in.
func (m *Manager) GenerateToken(claims Claims) (string, error) {
	now := time.Now()
	if claims.Issuer == "" {
		claims.Issuer = m.issuer
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil && m.accessDuration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.accessDuration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
