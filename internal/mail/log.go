// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// LogMailer writes the verification link to the log instead of sending it.
// Development only: the link is a live credential.
type LogMailer struct {
	logger *slog.Logger
	links  LinkBuilder
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger, links LinkBuilder) *LogMailer {
	return &LogMailer{logger: logger, links: links}
}

// SendVerification logs the link. It never fails.
func (m *LogMailer) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	m.logger.InfoContext(ctx, "verification email",
		"to", msg.To,
		"link", m.links.VerifyLink(msg.Token),
		"expires_at", msg.ExpiresAt)
	return nil
}

// Close is a no-op.
func (m *LogMailer) Close() error { return nil }
