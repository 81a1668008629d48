// Package auth validates the bearer tokens issued to signed-in users and
// turns them into the actor id the ledger works with.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoToken      = errors.New("no authentication token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTokenTTL is the lifetime of tokens minted by GenerateToken
const DefaultTokenTTL = 24 * time.Hour

// Claims are the JWT claims of a user token
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 user tokens
type Service struct {
	jwtSecret []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a token service. An empty issuer disables the issuer check.
func NewService(jwtSecret []byte, issuer string) *Service {
	return &Service{
		jwtSecret: jwtSecret,
		issuer:    issuer,
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
}

// WithTTL returns a copy of the service minting tokens valid for ttl
func (s *Service) WithTTL(ttl time.Duration) *Service {
	cp := *s
	cp.ttl = ttl
	return &cp
}

// TokenResponse represents a minted token
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateToken mints a token for userID. The identity provider normally
// issues tokens; this is used by the CLI and in development.
func (s *Service) GenerateToken(userID, username string) (*TokenResponse, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken parses tokenString and returns its claims. Tokens must be
// HS256-signed with the service secret, carry an expiry and name a user.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return claims, nil
}
