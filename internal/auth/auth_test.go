package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key-for-testing-only"

type stubVerifier struct {
	claims *Claims
	err    error
}

func (s *stubVerifier) Validate(string) (*Claims, error) { return s.claims, s.err }
func (s *stubVerifier) Close() error                     { return nil }

func TestLegacyTokenRoundTrip(t *testing.T) {
	token, err := GenerateLegacyToken(secret, "user-1", "ana@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateLegacyToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)

	_, err = ValidateLegacyToken(token, "other-secret")
	assert.Error(t, err)
}

func TestLegacyTokenExpired(t *testing.T) {
	token, err := GenerateLegacyToken(secret, "user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateLegacyToken(token, secret)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthenticator_PrefersVerifier(t *testing.T) {
	a := &Authenticator{
		Verifier: &stubVerifier{claims: &Claims{
			Email:            "ana@example.com",
			Username:         "ana",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
		}},
		JWTSecret: secret,
	}
	p, err := a.Authenticate("anything")
	require.NoError(t, err)
	assert.Equal(t, &Principal{UserID: "sub-1", Email: "ana@example.com", Username: "ana"}, p)
}

func TestAuthenticator_FallsBackToLegacy(t *testing.T) {
	a := &Authenticator{
		Verifier:  &stubVerifier{err: errors.New("unknown kid")},
		JWTSecret: secret,
	}
	token, err := GenerateLegacyToken(secret, "user-1", "", time.Hour)
	require.NoError(t, err)

	p, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Owner())
}

func TestAuthenticator_Failures(t *testing.T) {
	_, err := (&Authenticator{}).Authenticate("x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = (&Authenticator{Verifier: &stubVerifier{err: errors.New("bad")}}).Authenticate("x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = (&Authenticator{JWTSecret: secret}).Authenticate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalOwner(t *testing.T) {
	assert.Equal(t, "ana@example.com", (&Principal{UserID: "sub-1", Email: "ana@example.com"}).Owner())
	assert.Equal(t, "sub-1", (&Principal{UserID: "sub-1"}).Owner())
}

func TestCheckClient(t *testing.T) {
	idToken := &Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"client-a"}}}
	accessToken := &Claims{ClientID: "client-a"}

	assert.NoError(t, checkClient(idToken, "client-a"))
	assert.NoError(t, checkClient(accessToken, "client-a"))
	assert.NoError(t, checkClient(accessToken, ""))
	assert.Error(t, checkClient(idToken, "client-b"))
	assert.Error(t, checkClient(accessToken, "client-b"))
}
