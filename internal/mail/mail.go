// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package mail delivers verification emails. Drivers hand a message to an
// SMTP server, publish it to Kafka for an out-of-process worker, or only log
// the link.
package mail

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/config"
)

// Sender is a Mailer that owns resources released by Close.
type Sender interface {
	auth.Mailer
	Close() error
}

// New builds the driver selected by cfg. Network drivers are wrapped with
// retries.
func New(cfg *config.Config, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	links := LinkBuilder{BaseURL: cfg.AppURL}

	switch cfg.MailDriver {
	case config.MailDriverLog:
		return NewLogMailer(logger, links), nil
	case config.MailDriverSMTP:
		m, err := NewSMTPMailer(SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}, links)
		if err != nil {
			return nil, err
		}
		return NewRetrying(m, logger), nil
	case config.MailDriverKafka:
		p, err := NewKafkaPublisher(KafkaOptions{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
			TLS:      cfg.KafkaTLS,
		}, links)
		if err != nil {
			return nil, err
		}
		return NewRetrying(p, logger), nil
	}
	return nil, oops.Code("MAIL_DRIVER_UNKNOWN").
		With("driver", cfg.MailDriver).
		Errorf("unknown mail driver %q", cfg.MailDriver)
}

// LinkBuilder renders verification links under the public app URL.
type LinkBuilder struct {
	BaseURL string
}

// VerifyLink returns <base>/verify-email/<token>.
func (b LinkBuilder) VerifyLink(token string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/verify-email/" + url.PathEscape(token)
}
