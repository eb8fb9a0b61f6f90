package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_IssueAndValidate(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	token, expiresAt, err := s.Issue("dashboard")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestService_IssueEmptySubject(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	_, _, err := s.Issue("")
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestService_Validate_Invalid(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	valid, _, err := s.Issue("dashboard")
	require.NoError(t, err)

	otherSecret, _, err := NewService("other-secret", time.Hour).Issue("dashboard")
	require.NoError(t, err)

	expiredService := NewService("test-secret", time.Hour)
	expiredService.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredService.Issue("dashboard")
	require.NoError(t, err)

	noneToken, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "dashboard",
			Issuer:    Issuer,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	foreignIssuer, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "dashboard",
			Issuer:    "someone-else",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "tampered", token: valid + "x"},
		{name: "wrong secret", token: otherSecret},
		{name: "expired", token: expired},
		{name: "alg none", token: noneToken},
		{name: "foreign issuer", token: foreignIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}
