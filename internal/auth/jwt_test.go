package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, issued, err := m.GenerateAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, issued.ID)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, issued.ID, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestJWTManager_UniqueTokenIDs(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	_, a, err := m.GenerateAccessToken("user-1", "a@example.com")
	require.NoError(t, err)
	_, b, err := m.GenerateAccessToken("user-1", "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := m.GenerateAccessToken("user-1", "a@example.com")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, _, err := NewJWTManager(testSecret, time.Hour).GenerateAccessToken("user-1", "a@example.com")
	require.NoError(t, err)

	_, err = NewJWTManager("another-secret-another-secret-xx", time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsOtherSigningMethod(t *testing.T) {
	claims := &Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{
		ID:        "x",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_Garbage(t *testing.T) {
	_, err := NewJWTManager(testSecret, time.Hour).ValidateAccessToken("not.a.token")
	assert.Error(t, err)
}
