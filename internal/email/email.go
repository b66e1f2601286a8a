// Package email provides outbound email delivery for sequence steps.
package email

import (
	"context"
	"errors"

	"leadflow_backend/platform/logger"
)

// Sender delivers a single rendered message. Implementations classify
// failures: a PermanentError will never be retried, any other error is
// treated as retryable by the sweep scheduler.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// PermanentError marks a delivery failure that retrying cannot fix
// (malformed recipient, rejected sender, provider hard bounce).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent send failure: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a non-retryable delivery failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// LogSender is used when email delivery is disabled. It records the send in
// the log and reports success so sequence progress is still observable in
// development environments.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.log.Info("email delivery disabled, message dropped", "to", to, "subject", subject)
	return nil
}

// NewSender builds the configured Sender: SMTP when email is enabled,
// otherwise the log-only fallback.
func NewSender(cfg Config, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return NewLogSender(log)
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// Config is the subset of application configuration the email module needs.
type Config interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}
