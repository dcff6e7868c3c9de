package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("token-test-signing-key")

func TestCreateVerify_roundTrip(t *testing.T) {
	tokenString, err := Create(signingKey, "user-1", time.Minute)
	require.NoError(t, err)

	userId, err := Verify(signingKey, tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userId)
}

func TestVerify_rejectsWrongKey(t *testing.T) {
	tokenString, err := Create(signingKey, "user-1", time.Minute)
	require.NoError(t, err)

	_, err = Verify([]byte("a-different-key"), tokenString)
	assert.Error(t, err)
}

func TestVerify_rejectsExpiredToken(t *testing.T) {
	tokenString, err := Create(signingKey, "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = Verify(signingKey, tokenString)
	assert.Error(t, err)
}

func TestVerify_rejectsMissingUserIdClaim(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	tokenString, err := unsigned.SignedString(signingKey)
	require.NoError(t, err)

	_, err = Verify(signingKey, tokenString)
	assert.Error(t, err)
}

func TestVerify_rejectsUnsignedToken(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user-id": "user-1",
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(signingKey, tokenString)
	assert.Error(t, err)
}
