// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	DefaultSessionTTL     = 7 * 24 * time.Hour
	MinSessionSecretBytes = 32
)

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	UserID    ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionTokenService issues and verifies stateless HS256 session tokens.
type SessionTokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokenService creates a SessionTokenService. A non-positive ttl
// uses DefaultSessionTTL.
func NewSessionTokenService(secret []byte, ttl time.Duration) (*SessionTokenService, error) {
	if len(secret) < MinSessionSecretBytes {
		return nil, oops.Code("SESSION_SECRET_TOO_SHORT").
			With("min_bytes", MinSessionSecretBytes).
			Errorf("session secret must be at least %d bytes", MinSessionSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTokenService{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *SessionTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token asserting userID, issued now.
func (s *SessionTokenService) Issue(userID ulid.ULID) (token string, expiresAt time.Time, err error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt = issuedAt.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature, then expiry, and returns the claims.
func (s *SessionTokenService) Verify(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code(CodeSessionTokenMissing).Errorf("session token is required")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.IssuedAt == nil {
		return nil, oops.Code(CodeSessionTokenNoIssuedAt).Errorf("session token has no issued-at claim")
	}
	userID, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return nil, oops.Code(CodeSessionTokenMalformed).With("subject", claims.Subject).Errorf("session token subject is not a user id")
	}

	out := &SessionClaims{UserID: userID, IssuedAt: claims.IssuedAt.Time}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// InvalidatedByPasswordChange reports whether a token issued at issuedAt
// predates the user's last password change, compared at second precision.
func (s *SessionTokenService) InvalidatedByPasswordChange(user *User, issuedAt time.Time) bool {
	if user == nil || user.PasswordChangedAt == nil {
		return false
	}
	return user.PasswordChangedAt.Unix() > issuedAt.Unix()
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeSessionTokenMalformed).Errorf("session token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code(CodeSessionTokenBadSignature).Errorf("session token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeSessionTokenExpired).Errorf("session token has expired")
	default:
		return oops.Code(CodeSessionTokenMalformed).With("reason", err.Error()).Errorf("session token is invalid")
	}
}
