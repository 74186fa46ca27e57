// Package auth implements credential verification for HTTP requests and
// WebSocket handshakes: HS256 JWTs carrying the user identity, plus
// password hashing for the login path.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is absent, malformed,
	// carries a bad signature, or has expired.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSubject is returned when a token verifies but its subject
	// is not a structurally valid user identifier.
	ErrInvalidSubject = errors.New("token subject is not a valid user id")
)

// Token kinds carried in the token_type claim.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Identity is the verified subject bound to a connection or request.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// Claims are the custom JWT claims issued by this service.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Manager issues and verifies JWTs.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a Manager with the given signing secret and lifetimes.
func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken mints a short-lived access token for the given user.
func (m *Manager) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	return m.issue(userID, email, tokenTypeAccess, m.accessTTL)
}

// IssueRefreshToken mints a long-lived refresh token for the given user.
func (m *Manager) IssueRefreshToken(userID uuid.UUID, email string) (string, error) {
	return m.issue(userID, email, tokenTypeRefresh, m.refreshTTL)
}

func (m *Manager) issue(userID uuid.UUID, email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyAccess verifies an access token and returns the identity it carries.
func (m *Manager) VerifyAccess(tokenString string) (*Identity, error) {
	return m.verify(tokenString, tokenTypeAccess)
}

// VerifyRefresh verifies a refresh token and returns the identity it carries.
func (m *Manager) VerifyRefresh(tokenString string) (*Identity, error) {
	return m.verify(tokenString, tokenTypeRefresh)
}

func (m *Manager) verify(tokenString, wantType string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}

	// The token is authentic at this point; a bad subject is reported
	// separately so callers can tell the two failures apart.
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, ErrInvalidSubject
	}

	return &Identity{
		UserID:    userID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
