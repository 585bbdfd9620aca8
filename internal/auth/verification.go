// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Verification token configuration.
const (
	VerificationTokenBytes = 32             // 32 bytes = 64 hex chars
	DefaultVerificationTTL = 24 * time.Hour // lifetime from issue
)

// IssuedVerification is a freshly generated token. Token goes to the user by
// email; TokenHash is what gets stored.
type IssuedVerification struct {
	Token     string
	TokenHash string
	ExpiresAt time.Time
}

// VerificationTokenService issues and consumes single-use email verification
// tokens.
type VerificationTokenService struct {
	users UserRepository
	ttl   time.Duration
	now   func() time.Time
}

// NewVerificationTokenService creates a VerificationTokenService. A
// non-positive ttl uses DefaultVerificationTTL.
func NewVerificationTokenService(users UserRepository, ttl time.Duration) (*VerificationTokenService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &VerificationTokenService{users: users, ttl: ttl, now: time.Now}, nil
}

// Issue generates a random token expiring ttl from now. The caller persists
// the hash against the user.
func (s *VerificationTokenService) Issue() (*IssuedVerification, error) {
	tokenBytes := make([]byte, VerificationTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, oops.Code("VERIFY_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token := hex.EncodeToString(tokenBytes)
	return &IssuedVerification{
		Token:     token,
		TokenHash: HashVerificationToken(token),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}, nil
}

// Consume marks the token's owner as verified and returns the updated user.
// An expired token fails with CodeVerifyTokenExpired and stays on record so
// a new one can be issued in its place.
func (s *VerificationTokenService) Consume(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code(CodeVerifyTokenMissing).Errorf("verification token is required")
	}

	user, err := s.users.ConsumeVerificationToken(ctx, HashVerificationToken(token), s.now().UTC())
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrNotFound):
		return nil, oops.Code(CodeVerifyTokenNotFound).Errorf("verification token not found")
	case errors.Is(err, ErrTokenExpired):
		return nil, oops.Code(CodeVerifyTokenExpired).Errorf("verification token has expired")
	default:
		return nil, oops.Code("VERIFY_TOKEN_CONSUME_FAILED").
			With("operation", "consume verification token").
			Wrap(err)
	}
}

// HashVerificationToken computes the SHA256 hex digest stored for a token.
func HashVerificationToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
