// Package auth handles API authentication and per-client rate limiting.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

// Claims are the token claims issued and verified by the service.
type Claims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Known roles
const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// Service issues and verifies HS256 tokens.
type Service struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewService creates a token service. TTL defaults to 24h when zero.
func NewService(secret, issuer string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), issuer: issuer, tokenTTL: tokenTTL}
}

// IssueToken mints a signed token for a client.
func (s *Service) IssueToken(clientID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		ClientID: clientID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token string.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperrors.Authentication(fmt.Sprintf("invalid token: %v", err))
	}
	if !token.Valid {
		return nil, apperrors.Authentication("invalid token")
	}
	return claims, nil
}

// FromRequest extracts and verifies the bearer token on a request.
func (s *Service) FromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apperrors.Authentication("missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, apperrors.Authentication("Authorization header is not a bearer token")
	}
	return s.VerifyToken(token)
}

// RequireRole verifies the claims carry the needed role. Admin satisfies
// every role.
func RequireRole(claims *Claims, role string) error {
	if claims.Role == RoleAdmin || claims.Role == role {
		return nil
	}
	return apperrors.Authorization(fmt.Sprintf("role %q required", role))
}
