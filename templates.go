package provision

import (
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

// Template names rendered by the orchestrator.
const (
	TemplateConfirmEmail  = "confirm_email"
	TemplatePasswordReset = "password_reset"
	TemplateWelcome       = "welcome"
)

// RenderedMessage is the subject and HTML body produced by a Renderer.
type RenderedMessage struct {
	Subject string
	Body    string
}

// Renderer turns a named template and its data into an email.
type Renderer interface {
	Render(name string, data map[string]any) (RenderedMessage, error)
}

// MessageTemplate is the pongo2 source for one email.
type MessageTemplate struct {
	Subject string
	Body    string
}

// DefaultMessageTemplates returns the built-in email templates. Available
// variables: user (username, email), link, password.
func DefaultMessageTemplates() map[string]MessageTemplate {
	return map[string]MessageTemplate{
		TemplateConfirmEmail: {
			Subject: "Confirm your email",
			Body: `<p>Hello {{ user.Username }},</p>
<p>Please confirm your email address by following <a href="{{ link }}">this link</a>.</p>`,
		},
		TemplatePasswordReset: {
			Subject: "Reset your password",
			Body: `<p>Hello {{ user.Username }},</p>
<p>A password reset was requested for your account. Follow <a href="{{ link }}">this link</a> to choose a new password.</p>
<p>If you did not request a reset you can ignore this message.</p>`,
		},
		TemplateWelcome: {
			Subject: "Welcome",
			Body: `<p>Welcome {{ user.Username }},</p>
<p>Your temporary password is <strong>{{ password }}</strong>. Please change it after signing in.</p>`,
		},
	}
}

type compiledTemplate struct {
	subject *pongo2.Template
	body    *pongo2.Template
}

// TemplateRenderer renders pongo2 templates. Templates are compiled once.
type TemplateRenderer struct {
	mu        sync.RWMutex
	templates map[string]compiledTemplate
}

// NewTemplateRenderer compiles the default templates overlaid with overrides.
func NewTemplateRenderer(overrides map[string]MessageTemplate) (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: map[string]compiledTemplate{}}

	sources := DefaultMessageTemplates()
	for name, tpl := range overrides {
		sources[name] = tpl
	}

	for name, src := range sources {
		if err := r.Register(name, src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles and stores a template, replacing any previous one with the same name.
func (r *TemplateRenderer) Register(name string, src MessageTemplate) error {
	subject, err := pongo2.FromString(src.Subject)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid subject template %q", name))
	}
	body, err := pongo2.FromString(src.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid body template %q", name))
	}

	r.mu.Lock()
	r.templates[name] = compiledTemplate{subject: subject, body: body}
	r.mu.Unlock()
	return nil
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(name string, data map[string]any) (RenderedMessage, error) {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return RenderedMessage{}, goerrors.New("unknown email template", goerrors.CategoryNotFound).
			WithMetadata(map[string]any{"template": name})
	}

	ctx := pongo2.Context(data)

	subject, err := tpl.subject.Execute(ctx)
	if err != nil {
		return RenderedMessage{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email subject")
	}
	body, err := tpl.body.Execute(ctx)
	if err != nil {
		return RenderedMessage{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email body")
	}

	return RenderedMessage{Subject: subject, Body: body}, nil
}
