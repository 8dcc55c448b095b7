package provision

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SendWelcomeEmail replaces the user's password with a freshly generated one and
// emails it. The password is generated before the old one is removed, so an
// unsatisfiable policy leaves the account untouched.
func (o *Orchestrator) SendWelcomeEmail(ctx context.Context, username string) (err error) {
	if err := o.checkContext(ctx, "welcome email"); err != nil {
		return err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "SendWelcomeEmail")
	defer func() {
		o.metrics.observe("send_welcome_email", start)
		endSpan(span, err)
	}()

	if err := validation.Validate(username, validation.Required); err != nil {
		return validationFailed(err, "username is required")
	}

	user, err := o.findUser(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return notFound(ErrUserNotFound, "user not found").
			WithMetadata(map[string]any{"username": username})
	}

	password, err := o.generator.Generate(o.config.PasswordPolicy)
	if err != nil {
		return err
	}

	if err := o.store.RemovePassword(ctx, user); err != nil {
		return identityOperationFailed("remove_password", err)
	}

	if err := o.store.AddPassword(ctx, user, password); err != nil {
		o.logger.Error("user left without password after rotation failure", "user_id", user.ID, "error", err)
		return identityOperationFailed("add_password", err)
	}

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordRotated,
		UserID:    user.ID.String(),
		Username:  user.Username,
	})

	o.deliver(ctx, TemplateWelcome, user, map[string]any{"password": password})
	return nil
}
