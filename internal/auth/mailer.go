// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"context"
	"time"
)

// VerificationMessage is everything a mailer needs to send a verification
// email. Token is the plaintext token; it is never persisted.
type VerificationMessage struct {
	To        string
	FullName  string
	Token     string
	ExpiresAt time.Time
}

// Mailer delivers verification emails. A returned error means the message
// was not handed off and the caller should treat delivery as failed.
type Mailer interface {
	SendVerification(ctx context.Context, msg VerificationMessage) error
}
