package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid access token")
)

// Claims issued by the identity provider for marketplace sessions.
type Claims struct {
	Role            string `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
	jwt.RegisteredClaims
}

func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// Browsers cannot set headers on websocket handshakes.
	return r.URL.Query().Get("access_token")
}

// ParseActor validates an HS256 token and maps its claims to an Actor.
func ParseActor(tokenStr string, secret []byte) (Actor, error) {
	if tokenStr == "" {
		return Actor{}, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	actor := Actor{ID: id, Role: role}
	if claims.EstablishmentID != "" {
		estID, err := uuid.Parse(claims.EstablishmentID)
		if err != nil {
			return Actor{}, fmt.Errorf("%w: bad establishment_id", ErrInvalidToken)
		}
		actor.EstablishmentID = &estID
	}
	if role == RoleEstablishment && actor.EstablishmentID == nil {
		return Actor{}, fmt.Errorf("%w: establishment role without establishment_id", ErrInvalidToken)
	}

	return actor, nil
}

// IssueToken signs a token for the actor. Used by tooling and tests; production
// tokens come from the identity provider.
func IssueToken(a Actor, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.EstablishmentID != nil {
		claims.EstablishmentID = a.EstablishmentID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
