package login

import (
	"context"

	"github.com/flosch/pongo2/v6"
)

var (
	baseEmailTemplate = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ subject }}</title></head>
<body>
{{ content|safe }}
</body>
</html>`))

	activationSubject = pongo2.Must(pongo2.FromString(`Activate your account on {{ site }}`))
	activationBody    = pongo2.Must(pongo2.FromString(`<p>Hi {{ username }},</p>
<p>click <a href="{{ link }}">here</a> to activate your account on {{ site }}.</p>
<p>The link expires on {{ expires }}.</p>`))

	welcomeSubject = pongo2.Must(pongo2.FromString(`Welcome to {{ site }}`))
	welcomeBody    = pongo2.Must(pongo2.FromString(`<p>Hi {{ username }},</p>
<p>welcome to {{ site }}!</p>`))

	notificationSubject = pongo2.Must(pongo2.FromString(`New user on {{ site }}`))
	notificationBody    = pongo2.Must(pongo2.FromString(`<p>A new user registered on {{ site }}.</p>
<p>Username: {{ username }}<br>Email: {{ email }}</p>`))
)

// Notifier composes and delivers the account emails: activation link,
// welcome message and the admin notification of a new account.
type Notifier struct {
	mailer   Mailer
	from     string
	siteName string
	logger   Logger
}

// NewNotifier returns a Notifier. Admin notifications go to the from
// address.
func NewNotifier(mailer Mailer, from, siteName string) *Notifier {
	if siteName == "" {
		siteName = "Website"
	}
	return &Notifier{
		mailer:   mailer,
		from:     from,
		siteName: siteName,
		logger:   defaultLogger,
	}
}

func (n *Notifier) WithLogger(logger Logger) *Notifier {
	n.logger = normalizeLogger(logger)
	return n
}

// Configured reports whether a transport and a sender are set. The Send
// methods are safe on a nil Notifier and return ErrEmailNotConfigured.
func (n *Notifier) Configured() bool {
	return n != nil && n.mailer != nil && n.from != ""
}

// SendActivation mails the activation link to user.
func (n *Notifier) SendActivation(ctx context.Context, user *User, link *ActivationLink) error {
	if !n.Configured() {
		return ErrEmailNotConfigured
	}
	if user.Email == "" {
		return ErrUserNeedsEmail
	}
	data := pongo2.Context{
		"site":     n.siteName,
		"username": user.Username,
		"link":     link.URL,
		"expires":  link.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	return n.deliver(ctx, activationSubject, activationBody, data, user.Email)
}

// SendWelcome mails the welcome message to user.
func (n *Notifier) SendWelcome(ctx context.Context, user *User) error {
	if !n.Configured() {
		return ErrEmailNotConfigured
	}
	if user.Email == "" {
		return ErrUserNeedsEmail
	}
	data := pongo2.Context{
		"site":     n.siteName,
		"username": user.Username,
	}
	return n.deliver(ctx, welcomeSubject, welcomeBody, data, user.Email)
}

// SendNotification tells the site admin that user registered.
func (n *Notifier) SendNotification(ctx context.Context, user *User) error {
	if !n.Configured() {
		return ErrEmailNotConfigured
	}
	if user.Email == "" {
		return ErrUserNeedsEmail
	}
	data := pongo2.Context{
		"site":     n.siteName,
		"username": user.Username,
		"email":    user.Email,
	}
	return n.deliver(ctx, notificationSubject, notificationBody, data, n.from)
}

func (n *Notifier) deliver(ctx context.Context, subjectTpl, bodyTpl *pongo2.Template, data pongo2.Context, to string) error {
	if !n.Configured() {
		return ErrEmailNotConfigured
	}

	subject, err := subjectTpl.Execute(data)
	if err != nil {
		return wrapInternal(err, "failed to render email subject")
	}

	content, err := bodyTpl.Execute(data)
	if err != nil {
		return wrapInternal(err, "failed to render email body")
	}

	body, err := baseEmailTemplate.Execute(pongo2.Context{
		"subject": subject,
		"content": content,
	})
	if err != nil {
		return wrapInternal(err, "failed to render email layout")
	}

	sent, err := n.mailer.Send(ctx, subject, body, to)
	if err != nil || sent < 1 {
		n.logger.Error("email delivery failed", "to", to, "subject", subject, "error", err)
		return ErrEmailSendFailure
	}

	n.logger.Debug("email sent", "to", to, "subject", subject)
	return nil
}
