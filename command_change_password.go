package provision

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.opentelemetry.io/otel/attribute"
)

// ChangePasswordMessage is the input of ChangePassword.
type ChangePasswordMessage struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ClientID        string `json:"client_id"`
}

// Type returns the message name.
func (m ChangePasswordMessage) Type() string {
	return "provision.password.change"
}

// Validate checks required fields.
func (m ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(&m.NewPassword, validation.Required),
		validation.Field(&m.ClientID, validation.Required),
	)
}

// ChangePassword changes the password of an existing user. An unknown username
// yields OutcomeNotFound with no redirect and no store mutation. A store
// rejection is logged and reported as OutcomeFailed, but the client redirect is
// still resolved; an unknown client returns a CLIENT_NOT_FOUND error.
func (o *Orchestrator) ChangePassword(ctx context.Context, msg ChangePasswordMessage) (outcome PasswordOutcome, err error) {
	if err := o.checkContext(ctx, "password change"); err != nil {
		return PasswordOutcome{}, err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "ChangePassword", attribute.String("client_id", msg.ClientID))
	defer func() {
		o.metrics.observe("change_password", start)
		if err == nil {
			o.metrics.passwordOperation("change_password", outcome.Status)
		}
		endSpan(span, err)
	}()

	if err := msg.Validate(); err != nil {
		return PasswordOutcome{}, validationFailed(err, "invalid change password message")
	}

	user, err := o.findUser(ctx, msg.Username)
	if err != nil {
		return PasswordOutcome{}, err
	}
	if user == nil {
		o.logger.Info("change password requested for unknown user")
		return PasswordOutcome{Status: OutcomeNotFound}, nil
	}

	outcome.Status = OutcomeSucceeded
	if err := o.store.ChangePassword(ctx, user, msg.CurrentPassword, msg.NewPassword); err != nil {
		ie, ok := AsIdentityErrors(err)
		if !ok {
			return PasswordOutcome{Status: OutcomeFailed}, identityOperationFailed("change_password", err)
		}
		o.logger.Warn("change password rejected", "user_id", user.ID, "errors", ie.Codes())
		outcome.Status = OutcomeFailed
		outcome.Errors = ie
	} else {
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordChanged,
			UserID:    user.ID.String(),
			Username:  user.Username,
			Metadata:  map[string]any{"client_id": msg.ClientID},
		})
	}

	redirect, err := o.resolveRedirect(ctx, msg.ClientID)
	if err != nil {
		return outcome, err
	}
	outcome.Redirect = redirect
	return outcome, nil
}
