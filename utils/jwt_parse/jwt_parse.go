package jwt_parse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/shared_models"
)

var (
	ErrMissingToken = errors.New("no authorization token")
	ErrBadFormat    = errors.New("invalid authorization format")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are issued by the identity service; this service only verifies them.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if len(header) > 7 && strings.ToLower(header[:7]) == "bearer " {
		return strings.TrimSpace(header[7:]), nil
	}
	return "", ErrBadFormat
}

// ParseToken validates an HS256 token and returns the actor it names.
func ParseToken(tokenString string, secret []byte) (shared_models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return shared_models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return shared_models.Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	role, err := shared_models.ParseRole(claims.Role)
	if err != nil {
		return shared_models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return shared_models.Actor{ID: id, Role: role}, nil
}

// SignToken issues a token for an actor. Production tokens come from the identity
// service; this is for local tooling and tests.
func SignToken(actor shared_models.Actor, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
