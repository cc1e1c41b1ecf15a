package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminPrincipal identifies the holder of an admin bearer token.
type AdminPrincipal struct {
	Email string
}

// AuthService issues and validates the HS256 bearer tokens that guard the
// key-management endpoints. Tokens are stateless; there is no server-side
// session.
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates an AuthService with the given signing secret.
func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret)}
}

// Configured reports whether an admin token secret is present. Without
// one, the key-management surface stays closed.
func (s *AuthService) Configured() bool {
	return len(s.jwtSecret) > 0
}

// ValidateToken verifies an admin bearer token and returns the associated
// identity. All parse and expiry failures collapse into
// ErrInvalidCredentials; the caller sees one denial reason.
func (s *AuthService) ValidateToken(tokenStr string) (*AdminPrincipal, error) {
	if !s.Configured() {
		return nil, ErrInvalidCredentials
	}

	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &AdminPrincipal{Email: claims.Email}, nil
}

// IssueToken creates a new signed admin token for the given identity.
func (s *AuthService) IssueToken(email string, ttl time.Duration) (string, error) {
	if !s.Configured() {
		return "", errors.New("admin token secret not configured")
	}

	now := time.Now()
	claims := adminClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "tixgate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type adminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
