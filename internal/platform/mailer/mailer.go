// Package mailer delivers templated email: SMTP in production, the
// application log in development.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

const (
	TemplateLoginCode       = "login-code"
	TemplatePasswordChanged = "password-changed"
)

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Templates holds the registered templates.
type Templates struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplates returns the built-in templates.
func NewTemplates() *Templates {
	t := &Templates{templates: make(map[string]Template)}
	for _, tpl := range []Template{
		{
			ID:      TemplateLoginCode,
			Subject: "Your verification code",
			Body:    "Your login code: {{code}}\n\nThe code is valid for {{ttl_minutes}} minutes. If you did not try to sign in, change your password.",
		},
		{
			ID:      TemplatePasswordChanged,
			Subject: "Your password was changed",
			Body:    "Hello {{username}},\n\nthe password of your account was changed. All sessions have been signed out.",
		},
	} {
		t.templates[tpl.ID] = tpl
	}
	return t
}

// Register adds or replaces a template.
func (t *Templates) Register(tpl Template) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.templates[tpl.ID] = tpl
}

// Render substitutes data into the template. Unknown placeholders are kept.
func (t *Templates) Render(id string, data map[string]string) (subject, body string, err error) {
	t.mu.RLock()
	tpl, ok := t.templates[id]
	t.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	subject, body = tpl.Subject, tpl.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Mailer renders templates and hands the result to a sender.
type Mailer struct {
	sender    EmailSender
	templates *Templates
}

func New(sender EmailSender, templates *Templates) *Mailer {
	if templates == nil {
		templates = NewTemplates()
	}
	return &Mailer{sender: sender, templates: templates}
}

// Send renders templateID with data and emails it to to.
func (m *Mailer) Send(ctx context.Context, templateID, to string, data map[string]string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := m.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}
