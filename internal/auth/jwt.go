// Package auth issues and checks the signed tokens operators authenticate
// with.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scopes. API tokens authorize the HTTP API; feed tickets only let a
// camera connect its feed on behalf of an operator.
const (
	ScopeAPI  = "api"
	ScopeFeed = "feed"
)

// Default lifetimes.
const (
	TokenExpiry  = 7 * 24 * time.Hour
	TicketExpiry = 60 * time.Second
)

// ErrWrongScope is returned for a valid token used outside its scope.
var ErrWrongScope = errors.New("token not valid for this use")

// Claims represents the JWT claims.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Scope    string `json:"scope"`
	// Parent is the ID of the API token a feed ticket was issued under.
	Parent string `json:"parent,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates an API token for a user.
func GenerateToken(secret string, userID int64, username, role string) (string, error) {
	return sign(secret, Claims{UserID: userID, Username: username, Role: role, Scope: ScopeAPI}, TokenExpiry)
}

// GenerateFeedTicket creates a short-lived ticket that lets a camera join the
// feed of the user holding the parent API token.
func GenerateFeedTicket(secret string, parent *Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = TicketExpiry
	}
	return sign(secret, Claims{
		UserID:   parent.UserID,
		Username: parent.Username,
		Role:     parent.Role,
		Scope:    ScopeFeed,
		Parent:   parent.ID,
	}, ttl)
}

func sign(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.Username,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT and checks that it carries scope.
func ValidateToken(secret, tokenStr, scope string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Scope != scope {
		return nil, ErrWrongScope
	}
	return claims, nil
}
