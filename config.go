package provision

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config is the configuration surface of the orchestrator.
type Config struct {
	// PublicOrigin is the externally reachable base URL used in email links.
	PublicOrigin      string `env:"PUBLIC_ORIGIN" envDefault:"http://localhost:5000" json:"public_origin"`
	ConfirmEmailPath  string `env:"CONFIRM_EMAIL_PATH" envDefault:"/account/confirm-email" json:"confirm_email_path"`
	ResetPasswordPath string `env:"RESET_PASSWORD_PATH" envDefault:"/account/reset-password" json:"reset_password_path"`
	SenderAddress     string `env:"SENDER_ADDRESS" envDefault:"no-reply@example.com" json:"sender_address"`

	NotificationClientID      string        `env:"NOTIFICATION_CLIENT_ID" envDefault:"provisioning" json:"notification_client_id"`
	NotificationClientSecret  string        `env:"NOTIFICATION_CLIENT_SECRET" json:"-"`
	NotificationTokenLifetime time.Duration `env:"NOTIFICATION_TOKEN_LIFETIME" envDefault:"3600s" json:"notification_token_lifetime"`
	TokenSafetyMargin         time.Duration `env:"TOKEN_SAFETY_MARGIN" envDefault:"2m" json:"token_safety_margin"`

	PasswordPolicy PasswordPolicy `envPrefix:"PASSWORD_" json:"password_policy"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		PublicOrigin:              "http://localhost:5000",
		ConfirmEmailPath:          "/account/confirm-email",
		ResetPasswordPath:         "/account/reset-password",
		SenderAddress:             "no-reply@example.com",
		NotificationClientID:      "provisioning",
		NotificationTokenLifetime: DefaultTokenLifetime,
		TokenSafetyMargin:         DefaultTokenSafetyMargin,
		PasswordPolicy:            DefaultPasswordPolicy(),
	}
}

// LoadConfigFromEnv reads PROVISION_ prefixed environment variables and
// validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "PROVISION_"})
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse provisioning config from environment").
			WithTextCode(TextCodeValidationFailed)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. An unsatisfiable password policy is
// reported as POLICY_VIOLATION so it surfaces at startup rather than on the
// first CreateUser call.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PublicOrigin, validation.Required, is.URL),
		validation.Field(&c.ConfirmEmailPath, validation.Required),
		validation.Field(&c.ResetPasswordPath, validation.Required),
		validation.Field(&c.SenderAddress, validation.Required, is.EmailFormat),
		validation.Field(&c.NotificationClientID, validation.Required),
		validation.Field(&c.NotificationTokenLifetime, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.TokenSafetyMargin, validation.Min(time.Duration(0)),
			validation.Max(c.NotificationTokenLifetime-1).Error("must be shorter than the token lifetime")),
	)
	if err != nil {
		return validationFailed(err, "invalid provisioning config")
	}
	if err := c.PasswordPolicy.Validate(); err != nil {
		return policyViolation(err, "password policy cannot be satisfied").
			WithMetadata(map[string]any{"available_chars": c.PasswordPolicy.AvailableChars()})
	}
	return nil
}

// NotificationCredentials returns the client credentials used for notifier tokens.
func (c Config) NotificationCredentials() ClientCredentials {
	return ClientCredentials{
		ClientID:     c.NotificationClientID,
		ClientSecret: c.NotificationClientSecret,
	}
}

func (c Config) link(path string, query url.Values) string {
	base, err := url.Parse(c.PublicOrigin)
	if err != nil {
		base = &url.URL{}
	}
	u := base.JoinPath(path)
	u.RawQuery = query.Encode()
	return u.String()
}
