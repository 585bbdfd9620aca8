// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package mail

import (
	"context"
	"errors"
	"log/slog"
	"net/textproto"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// Retry defaults: 200ms, 400ms, 800ms between attempts.
const (
	DefaultRetryBase = 200 * time.Millisecond
	DefaultRetries   = 3
)

// Retrying retries transient delivery failures with exponential backoff.
// The caller's context bounds the whole sequence.
type Retrying struct {
	inner   Sender
	logger  *slog.Logger
	base    time.Duration
	retries uint64
}

// NewRetrying wraps inner with the default policy.
func NewRetrying(inner Sender, logger *slog.Logger) *Retrying {
	return &Retrying{inner: inner, logger: logger, base: DefaultRetryBase, retries: DefaultRetries}
}

// SendVerification delivers msg, retrying transient failures.
func (r *Retrying) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.inner.SendVerification(ctx, msg)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		r.logger.WarnContext(ctx, "verification email attempt failed",
			append(errutil.Attrs(err), "attempt", attempt)...)
		return retry.RetryableError(err)
	})
}

// Close closes the wrapped sender.
func (r *Retrying) Close() error {
	return r.inner.Close() //nolint:wrapcheck // inner errors are already coded
}

// permanent reports failures a retry cannot fix: a message that does not
// render or encode, or an SMTP 5xx rejection.
func permanent(err error) bool {
	switch errutil.Code(err) {
	case "MAIL_RENDER_FAILED", "MAIL_ENCODE_FAILED":
		return true
	}
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code >= 500
}
