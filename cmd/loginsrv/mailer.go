package main

import (
	"context"

	"github.com/goliatone/go-logger/glog"
	login "github.com/goliatone/go-login"
)

// logMailer writes outgoing mail to the log instead of delivering it.
type logMailer struct {
	logger glog.Logger
}

var _ login.Mailer = (*logMailer)(nil)

func newLogMailer(logger glog.Logger) *logMailer {
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, subject, htmlBody string, to ...string) (int, error) {
	m.logger.Info("outgoing email", "to", to, "subject", subject, "body", htmlBody)
	return len(to), nil
}
