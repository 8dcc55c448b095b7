package provision

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ConfirmEmailMessage is the input of ConfirmEmail.
type ConfirmEmailMessage struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Type returns the message name.
func (m ConfirmEmailMessage) Type() string {
	return "provision.email.confirm"
}

// Validate checks required fields.
func (m ConfirmEmailMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Token, validation.Required),
	)
}

// ConfirmEmail verifies a confirmation token. An unknown user is NOT_FOUND; a
// token the store rejects is IDENTITY_OPERATION_FAILED with the store's error
// codes in metadata.
func (o *Orchestrator) ConfirmEmail(ctx context.Context, msg ConfirmEmailMessage) (err error) {
	if err := o.checkContext(ctx, "email confirmation"); err != nil {
		return err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "ConfirmEmail")
	defer func() {
		o.metrics.observe("confirm_email", start)
		endSpan(span, err)
	}()

	if err := msg.Validate(); err != nil {
		return validationFailed(err, "invalid confirm email message")
	}

	user, err := o.findUser(ctx, msg.Username)
	if err != nil {
		return err
	}
	if user == nil {
		return notFound(ErrUserNotFound, "confirmation request could not be processed")
	}

	if err := o.store.ConfirmEmail(ctx, user, msg.Token); err != nil {
		failure := identityOperationFailed("confirm_email", err)
		if ie, ok := AsIdentityErrors(err); ok {
			o.logger.Warn("email confirmation rejected", "user_id", user.ID, "errors", ie.Codes())
		}
		return failure
	}

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		UserID:    user.ID.String(),
		Username:  user.Username,
	})
	return nil
}
