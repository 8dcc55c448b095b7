package provision

import (
	"context"
	"net/url"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// CreateUserMessage is the input of CreateUser. Nil and empty Roles or Claims
// both mean nothing was requested.
type CreateUserMessage struct {
	GivenName   string            `json:"given_name"`
	MiddleName  string            `json:"middle_name,omitempty"`
	FamilyName  string            `json:"family_name"`
	Username    string            `json:"username"`
	Password    string            `json:"password,omitempty"`
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	Claims      map[string]string `json:"claims,omitempty"`
	Roles       []string          `json:"roles,omitempty"`
	// UseHashid derives the user id from the email address instead of a random uuid.
	UseHashid bool `json:"use_hashid,omitempty"`
}

// Type returns the message name.
func (m CreateUserMessage) Type() string {
	return "provision.user.create"
}

// Validate checks required fields.
func (m CreateUserMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.GivenName, validation.Required, validation.Length(1, 100)),
		validation.Field(&m.MiddleName, validation.Length(0, 100)),
		validation.Field(&m.FamilyName, validation.Required, validation.Length(1, 100)),
		validation.Field(&m.Username, validation.Required, validation.Length(1, 256)),
		validation.Field(&m.Email, validation.Required, is.EmailFormat),
		validation.Field(&m.PhoneNumber, validation.Length(0, 32)),
		validation.Field(&m.Roles, validation.Each(validation.Required)),
		validation.Field(&m.Claims, validation.By(claimTypesNotBlank)),
	)
}

func claimTypesNotBlank(value any) error {
	claims, _ := value.(map[string]string)
	for k := range claims {
		if strings.TrimSpace(k) == "" {
			return validation.NewError("validation_claim_type_blank", "claim types cannot be blank")
		}
	}
	return nil
}

// CreateUserResult reports the outcome of CreateUser. UserID is set only when
// the user was fully provisioned.
type CreateUserResult struct {
	UserID           uuid.UUID `json:"user_id"`
	State            SagaState `json:"state"`
	ConfirmationSent bool      `json:"confirmation_sent"`
}

// CreateUser provisions a user: create, then roles, then claims, deleting the
// user again if roles or claims fail. A confirmation email is sent on success;
// delivery problems are logged and do not fail the call.
func (o *Orchestrator) CreateUser(ctx context.Context, msg CreateUserMessage) (result CreateUserResult, err error) {
	if err := o.checkContext(ctx, "user creation"); err != nil {
		return CreateUserResult{State: SagaPending}, err
	}

	start := o.now()
	ctx, span := o.startSpan(ctx, "CreateUser", attribute.String("username", msg.Username))
	defer func() {
		o.metrics.observe("create_user", start)
		endSpan(span, err)
	}()

	result.State = SagaPending

	if err := msg.Validate(); err != nil {
		return result, validationFailed(err, "invalid create user message")
	}

	password, err := o.effectivePassword(msg.Password)
	if err != nil {
		return result, err
	}

	user, err := o.newUser(msg)
	if err != nil {
		return result, err
	}

	hash, err := o.hasher.Hash(user, password)
	if err != nil || hash == "" {
		return result, hashingFailed(err).WithMetadata(map[string]any{"username": msg.Username})
	}
	user.PasswordHash = hash

	saga := NewProvisioningSaga(o.store,
		WithSagaLogger(o.logger),
		WithSagaActivitySink(o.activity),
		WithSagaClock(o.now),
		WithSagaActor(o.actorFor(ctx)),
	)

	err = saga.Run(ctx, ProvisioningPlan{
		User:   user,
		Roles:  msg.Roles,
		Claims: buildClaims(msg),
	})
	result.State = saga.State()
	o.metrics.userProvisioned(result.State)

	switch result.State {
	case SagaCompensated:
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventUserCompensated,
			UserID:    user.ID.String(),
			Username:  user.Username,
		})
	case SagaCompensationFailed:
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventCompensationFailed,
			UserID:    user.ID.String(),
			Username:  user.Username,
		})
	}

	if err != nil {
		o.logger.Warn("create user failed", "username", msg.Username, "state", result.State, "error", err)
		return result, err
	}

	result.UserID = user.ID
	o.logger.Info("user provisioned", "user_id", user.ID, "username", user.Username, "roles", len(msg.Roles))
	o.record(ctx, ActivityEvent{
		EventType: ActivityEventUserProvisioned,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Metadata:  map[string]any{"roles": append([]string(nil), msg.Roles...)},
	})

	result.ConfirmationSent = o.sendConfirmation(ctx, user)
	return result, nil
}

func (o *Orchestrator) effectivePassword(explicit string) (string, error) {
	policy := o.config.PasswordPolicy
	if explicit == "" {
		return o.generator.Generate(policy)
	}
	if errs := policy.Check(explicit); len(errs) > 0 {
		return "", newError(errs, goerrors.CategoryValidation, TextCodeValidationFailed, "password does not satisfy policy").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"errors": errs.Codes()})
	}
	return explicit, nil
}

func (o *Orchestrator) newUser(msg CreateUserMessage) (*User, error) {
	id := uuid.New()
	if msg.UseHashid {
		hid, err := hashid.NewUUID(strings.ToLower(strings.TrimSpace(msg.Email)))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive user id from email")
		}
		id = hid
	}

	now := o.now().UTC()
	return &User{
		ID:                 id,
		Username:           strings.TrimSpace(msg.Username),
		NormalizedUsername: NormalizeUsername(msg.Username),
		Email:              strings.TrimSpace(msg.Email),
		PhoneNumber:        msg.PhoneNumber,
		SecurityStamp:      uuid.NewString(),
		CreatedAt:          &now,
		UpdatedAt:          &now,
	}, nil
}

// buildClaims orders claims as: explicit claims sorted by type, one role claim
// per role, then email, given name, family name and the optional middle name.
func buildClaims(msg CreateUserMessage) []Claim {
	claims := make([]Claim, 0, len(msg.Claims)+len(msg.Roles)+4)

	types := make([]string, 0, len(msg.Claims))
	for t := range msg.Claims {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		claims = append(claims, Claim{Type: t, Value: msg.Claims[t]})
	}

	for _, role := range msg.Roles {
		claims = append(claims, Claim{Type: ClaimRole, Value: role})
	}

	claims = append(claims,
		Claim{Type: ClaimEmail, Value: strings.TrimSpace(msg.Email)},
		Claim{Type: ClaimGivenName, Value: msg.GivenName},
		Claim{Type: ClaimFamilyName, Value: msg.FamilyName},
	)
	if msg.MiddleName != "" {
		claims = append(claims, Claim{Type: ClaimMiddleName, Value: msg.MiddleName})
	}
	return claims
}

func (o *Orchestrator) sendConfirmation(ctx context.Context, user *User) bool {
	token, err := o.store.GenerateEmailConfirmationToken(ctx, user)
	if err != nil {
		o.logger.Error("notification failed", "template", TemplateConfirmEmail, "user_id", user.ID,
			"error", notificationFailed(err, TemplateConfirmEmail))
		o.metrics.notification(TemplateConfirmEmail, err)
		return false
	}

	link := o.config.link(o.config.ConfirmEmailPath, url.Values{
		"username": {user.Username},
		"token":    {token},
	})

	return o.deliver(ctx, TemplateConfirmEmail, user, map[string]any{"link": link})
}
