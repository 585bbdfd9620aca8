// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
)

//go:embed templates/verify_email.html
var templateFS embed.FS

var verifyTemplate = template.Must(template.ParseFS(templateFS, "templates/verify_email.html"))

const (
	verifySubject      = "Verify your MentorHub email"
	defaultDialTimeout = 8 * time.Second
	defaultSendTimeout = 15 * time.Second
)

// SMTPOptions configures an SMTPMailer.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Zero values use 8s and 15s.
	DialTimeout time.Duration
	SendTimeout time.Duration
}

// SMTPMailer sends verification emails through an SMTP relay, upgrading to
// TLS when the server offers STARTTLS.
type SMTPMailer struct {
	opts     SMTPOptions
	addr     string
	envelope string
	links    LinkBuilder
	dialer   *net.Dialer
	tls      *tls.Config
}

// NewSMTPMailer creates an SMTPMailer. From may include a display name.
func NewSMTPMailer(opts SMTPOptions, links LinkBuilder) (*SMTPMailer, error) {
	if opts.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	from, err := mail.ParseAddress(opts.From)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", opts.From).Wrap(err)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	m := &SMTPMailer{
		opts:     opts,
		addr:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		envelope: from.Address,
		links:    links,
		dialer:   &net.Dialer{Timeout: opts.DialTimeout},
		tls:      &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12},
	}
	return m, nil
}

// SendVerification renders the verification email and delivers it.
func (m *SMTPMailer) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	body, err := m.render(msg)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg.To, body); err != nil {
		return oops.Code("MAIL_SMTP_FAILED").With("addr", m.addr).Wrap(err)
	}
	return nil
}

// Close is a no-op; connections are per message.
func (m *SMTPMailer) Close() error { return nil }

func (m *SMTPMailer) render(msg auth.VerificationMessage) ([]byte, error) {
	var html bytes.Buffer
	err := verifyTemplate.Execute(&html, map[string]string{
		"FullName":  msg.FullName,
		"Link":      m.links.VerifyLink(msg.Token),
		"ExpiresAt": msg.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST"),
	})
	if err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}

	to := (&mail.Address{Name: msg.FullName, Address: msg.To}).String()
	headers := []string{
		"From: " + m.opts.From,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", verifySubject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")
	out.WriteString(strings.ReplaceAll(html.String(), "\n", "\r\n"))
	return out.Bytes(), nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, body []byte) error {
	conn, err := m.dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	deadline := time.Now().Add(m.opts.SendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline) //nolint:errcheck // a failed deadline surfaces as an I/O error

	c, err := smtp.NewClient(conn, m.opts.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close() //nolint:errcheck // earlier steps report the meaningful error

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(m.tls); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.opts.Username != "" {
		plain := smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
		if err := c.Auth(plain); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(m.envelope); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	// The relay has queued the message; a failed QUIT must not trigger a resend.
	_ = c.Quit() //nolint:errcheck // delivery already accepted
	return nil
}
