// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package notify contains the reference event subscribers: mail
// notifications to applicants/approvers and analytics counters. Subscriber
// failures are logged and counted; they never reach the publisher.
package notify

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"
)

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig carries the mail delivery settings.
type SMTPConfig struct {
	From     string
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer delivers mail over SMTP, retrying transient failures with
// exponential backoff (3 attempts).
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer creates a mailer from the given configuration.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAILER_INIT_FAILED").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send delivers one message. SMTP faults are treated as retryable up to the
// attempt budget; the last error is returned to the caller for logging.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return oops.Code("MAIL_FROM_INVALID").With("from", m.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("MAIL_TO_INVALID").With("to", to).Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", to).With("subject", subject).Wrap(err)
	}
	return nil
}
