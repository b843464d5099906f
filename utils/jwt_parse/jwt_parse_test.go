package jwt_parse

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("jwt-test-secret")

func TestSignAndParse(t *testing.T) {
	actor := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleHost}
	tok, err := SignToken(actor, secret, time.Hour)
	require.NoError(t, err)

	got, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	_, err = ParseToken(tok, []byte("other"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := SignToken(shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}, secret, -time.Minute)
	require.NoError(t, err)

	sign := func(claims Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		require.NoError(t, err)
		return s
	}
	badRole := sign(Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}})
	badSubject := sign(Claims{Role: "client", RegisteredClaims: jwt.RegisteredClaims{Subject: "someone"}})

	for name, tok := range map[string]string{
		"expired":     expired,
		"bad role":    badRole,
		"bad subject": badSubject,
		"garbage":     "not.a.token",
	} {
		_, err := ParseToken(tok, secret)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = BearerToken("bearer  xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrBadFormat)
}
