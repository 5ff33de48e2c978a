package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateToken(secret, "u-1", "Ayu", "cashier", "t1", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "Ayu", claims.Name)
	assert.Equal(t, "cashier", claims.Role)
	assert.Equal(t, "t1", claims.TenantID)

	_, err = ParseToken([]byte("wrong"), tok)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	secret := []byte("s3cret")

	noTenant, err := GenerateToken(secret, "u-1", "Ayu", "cashier", "", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, noTenant)
	assert.Error(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID:           "u-1",
		TenantID:         "t1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	signed, err := foreign.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, signed)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "u-1", TenantID: "t1"})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(secret, none)
	assert.Error(t, err)
}
