package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	tok, err := m.GenerateToken(42, "alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewJWTManager("one", time.Minute).GenerateToken(1, "a")
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Minute).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	claims := CustomClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingUser(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	tok, err := m.GenerateToken(0, "nobody")
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
