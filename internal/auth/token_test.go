package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("0123456789abcdef", time.Hour)

	tok, claims, err := iss.Issue(42, true)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), parsed.UserID)
	assert.True(t, parsed.IsAdmin)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("0123456789abcdef", time.Minute)
	base := time.Now()
	iss.now = func() time.Time { return base }

	tok, _, err := iss.Issue(1, false)
	require.NoError(t, err)

	iss.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, _, err := NewIssuer("0123456789abcdef", time.Hour).Issue(1, false)
	require.NoError(t, err)

	_, err = NewIssuer("fedcba9876543210", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	iss := NewIssuer("0123456789abcdef", time.Hour)
	claims := &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
