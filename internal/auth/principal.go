package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("authentication not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Email    string
	Username string
}

// Owner is the value jobs are recorded under: the email when the token
// has one, the subject otherwise.
func (p *Principal) Owner() string {
	if p.Email != "" {
		return p.Email
	}
	return p.UserID
}

// Authenticator tries the user pool verifier first and falls back to
// HMAC development tokens when a secret is configured.
type Authenticator struct {
	Verifier  TokenVerifier
	JWTSecret string
}

func (a *Authenticator) Authenticate(tokenString string) (*Principal, error) {
	if a.Verifier != nil {
		claims, err := a.Verifier.Validate(tokenString)
		if err == nil {
			return &Principal{
				UserID:   claims.Subject,
				Email:    claims.Email,
				Username: claims.Username,
			}, nil
		}
		if a.JWTSecret == "" {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if a.JWTSecret != "" {
		claims, err := ValidateLegacyToken(tokenString, a.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		return &Principal{
			UserID:   userID,
			Email:    claims.Email,
			Username: claims.Username,
		}, nil
	}

	return nil, ErrNotConfigured
}
