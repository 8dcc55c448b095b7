package provision

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.opentelemetry.io/otel/attribute"
)

// PasswordResetConfirmMessage is the input of ConfirmPasswordReset.
type PasswordResetConfirmMessage struct {
	Username    string `json:"username"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
	ClientID    string `json:"client_id"`
}

// Type returns the message name.
func (m PasswordResetConfirmMessage) Type() string {
	return "provision.password.reset_confirm"
}

// Validate checks required fields.
func (m PasswordResetConfirmMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.NewPassword, validation.Required),
		validation.Field(&m.ClientID, validation.Required),
	)
}

// ConfirmPasswordReset applies a reset token and new password, then resolves
// the client redirect. The reset is applied before the client is looked up, so
// an unknown client returns OutcomeSucceeded with no redirect together with a
// CLIENT_NOT_FOUND error.
func (o *Orchestrator) ConfirmPasswordReset(ctx context.Context, msg PasswordResetConfirmMessage) (outcome PasswordOutcome, err error) {
	if err := o.checkContext(ctx, "password reset confirmation"); err != nil {
		return PasswordOutcome{}, err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "ConfirmPasswordReset", attribute.String("client_id", msg.ClientID))
	defer func() {
		o.metrics.observe("confirm_password_reset", start)
		if err == nil {
			o.metrics.passwordOperation("reset_password", outcome.Status)
		}
		endSpan(span, err)
	}()

	if err := msg.Validate(); err != nil {
		return PasswordOutcome{}, validationFailed(err, "invalid password reset confirmation")
	}

	user, err := o.findUser(ctx, msg.Username)
	if err != nil {
		return PasswordOutcome{}, err
	}
	if user == nil {
		o.logger.Info("password reset confirmation for unknown user")
		return PasswordOutcome{Status: OutcomeNotFound}, nil
	}

	if err := o.store.ResetPassword(ctx, user, msg.Token, msg.NewPassword); err != nil {
		ie, ok := AsIdentityErrors(err)
		if !ok {
			return PasswordOutcome{Status: OutcomeFailed}, identityOperationFailed("reset_password", err)
		}
		o.logger.Warn("password reset rejected", "user_id", user.ID, "errors", ie.Codes())
		return PasswordOutcome{Status: OutcomeFailed, Errors: ie}, nil
	}

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Metadata:  map[string]any{"client_id": msg.ClientID},
	})

	outcome.Status = OutcomeSucceeded
	redirect, err := o.resolveRedirect(ctx, msg.ClientID)
	if err != nil {
		o.logger.Error("password reset applied but client could not be resolved", "user_id", user.ID, "client_id", msg.ClientID, "error", err)
		return outcome, err
	}
	outcome.Redirect = redirect
	return outcome, nil
}
