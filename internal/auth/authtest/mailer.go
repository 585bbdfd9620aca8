// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package authtest

import (
	"context"
	"strings"
	"sync"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// Mailer records verification messages instead of sending them.
type Mailer struct {
	mu   sync.Mutex
	sent []auth.VerificationMessage
	err  error
}

// NewMailer creates a recording Mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

// FailWith makes later sends return err. A nil err restores delivery.
func (m *Mailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SendVerification implements auth.Mailer.
func (m *Mailer) SendVerification(_ context.Context, msg auth.VerificationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of every recorded message.
func (m *Mailer) Sent() []auth.VerificationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.VerificationMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastTokenFor returns the token of the latest message sent to email.
func (m *Mailer) LastTokenFor(email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == email {
			return m.sent[i].Token, true
		}
	}
	return "", false
}

// Hasher is a fast, insecure auth.PasswordHasher for tests. Hashes are the
// password behind a fixed prefix; anything without the prefix is "legacy".
type Hasher struct{}

const hasherPrefix = "plain$"

// Hash implements auth.PasswordHasher.
func (Hasher) Hash(_ context.Context, password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return hasherPrefix + password, nil
}

// Verify implements auth.PasswordHasher.
func (Hasher) Verify(_ context.Context, password, hash string) (bool, error) {
	return strings.TrimPrefix(hash, hasherPrefix) == password && hash != "", nil
}

// NeedsUpgrade implements auth.PasswordHasher.
func (Hasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, hasherPrefix)
}

var (
	_ auth.Mailer         = (*Mailer)(nil)
	_ auth.PasswordHasher = Hasher{}
)
