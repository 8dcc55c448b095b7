package provision

import (
	"context"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.opentelemetry.io/otel/attribute"
)

// PasswordResetRequestMessage is the input of RequestPasswordReset.
type PasswordResetRequestMessage struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	ClientID string `json:"client_id"`
}

// Type returns the message name.
func (m PasswordResetRequestMessage) Type() string {
	return "provision.password.reset_request"
}

// Validate checks required fields.
func (m PasswordResetRequestMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Email, is.EmailFormat),
		validation.Field(&m.ClientID, validation.Required),
	)
}

// RequestPasswordReset emails a reset link. Unknown usernames, and emails that
// do not match the stored address, succeed silently so callers cannot probe for
// accounts.
func (o *Orchestrator) RequestPasswordReset(ctx context.Context, msg PasswordResetRequestMessage) (err error) {
	if err := o.checkContext(ctx, "password reset request"); err != nil {
		return err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "RequestPasswordReset", attribute.String("client_id", msg.ClientID))
	defer func() {
		o.metrics.observe("request_password_reset", start)
		endSpan(span, err)
	}()

	if err := msg.Validate(); err != nil {
		return validationFailed(err, "invalid password reset request")
	}

	user, err := o.findUser(ctx, msg.Username)
	if err != nil {
		return err
	}
	if user == nil {
		o.logger.Info("password reset requested for unknown user")
		return nil
	}

	if msg.Email != "" && !strings.EqualFold(strings.TrimSpace(msg.Email), user.Email) {
		o.logger.Info("password reset email mismatch", "user_id", user.ID)
		return nil
	}

	token, err := o.store.GeneratePasswordResetToken(ctx, user)
	if err != nil {
		return identityOperationFailed("generate_password_reset_token", err)
	}

	link := o.config.link(o.config.ResetPasswordPath, url.Values{
		"username":  {user.Username},
		"token":     {token},
		"client_id": {msg.ClientID},
	})

	sent := o.deliver(ctx, TemplatePasswordReset, user, map[string]any{"link": link})

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Metadata:  map[string]any{"client_id": msg.ClientID, "sent": sent},
	})
	return nil
}
