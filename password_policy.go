package provision

import (
	"strconv"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Character classes used for generation and policy checks.
const (
	uppercaseChars = "ABCDEFGHJKLMNOPQRSTUVWXYZ"
	lowercaseChars = "abcdefghijkmnopqrstuvwxyz"
	digitChars     = "0123456789"
	symbolChars    = "!@$?_-"

	// fallbackChars is used when the policy enables no class at all.
	fallbackChars = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// PasswordPolicy describes what a generated or user supplied password must satisfy.
type PasswordPolicy struct {
	RequiredLength         int  `env:"REQUIRED_LENGTH" envDefault:"6" json:"required_length"`
	RequiredUniqueChars    int  `env:"REQUIRED_UNIQUE_CHARS" envDefault:"1" json:"required_unique_chars"`
	RequireUppercase       bool `env:"REQUIRE_UPPERCASE" envDefault:"true" json:"require_uppercase"`
	RequireLowercase       bool `env:"REQUIRE_LOWERCASE" envDefault:"true" json:"require_lowercase"`
	RequireDigit           bool `env:"REQUIRE_DIGIT" envDefault:"true" json:"require_digit"`
	RequireNonAlphanumeric bool `env:"REQUIRE_NON_ALPHANUMERIC" envDefault:"true" json:"require_non_alphanumeric"`
}

// DefaultPasswordPolicy mirrors the defaults used by the identity store.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		RequiredLength:         6,
		RequiredUniqueChars:    1,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireDigit:           true,
		RequireNonAlphanumeric: true,
	}
}

// Validate checks the policy is satisfiable. A zero RequiredLength is allowed;
// RequiredUniqueChars may not exceed the number of distinct characters the
// enabled classes can produce.
func (p PasswordPolicy) Validate() error {
	available := p.AvailableChars()
	return validation.ValidateStruct(&p,
		validation.Field(&p.RequiredLength, validation.Min(0)),
		validation.Field(&p.RequiredUniqueChars,
			validation.Min(0),
			validation.Max(available).Error("must be no greater than "+strconv.Itoa(available)+", the distinct characters available"),
		),
	)
}

// AvailableChars counts the distinct characters the policy can draw from.
func (p PasswordPolicy) AvailableChars() int {
	seen := map[rune]struct{}{}
	for _, class := range p.charPool() {
		for _, r := range class {
			seen[r] = struct{}{}
		}
	}
	return len(seen)
}

func (p PasswordPolicy) enabledClasses() []string {
	classes := make([]string, 0, 4)
	if p.RequireUppercase {
		classes = append(classes, uppercaseChars)
	}
	if p.RequireLowercase {
		classes = append(classes, lowercaseChars)
	}
	if p.RequireDigit {
		classes = append(classes, digitChars)
	}
	if p.RequireNonAlphanumeric {
		classes = append(classes, symbolChars)
	}
	return classes
}

func (p PasswordPolicy) charPool() []string {
	if classes := p.enabledClasses(); len(classes) > 0 {
		return classes
	}
	return []string{fallbackChars}
}

// Check validates password against the policy and returns one IdentityError per
// unmet requirement.
func (p PasswordPolicy) Check(password string) IdentityErrors {
	var errs IdentityErrors

	if len([]rune(password)) < p.RequiredLength {
		errs = append(errs, IdentityError{
			Code:        "PasswordTooShort",
			Description: "Passwords must be at least " + strconv.Itoa(p.RequiredLength) + " characters.",
		})
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	distinct := map[rune]struct{}{}
	for _, r := range password {
		distinct[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	if p.RequireNonAlphanumeric && !hasSymbol {
		errs = append(errs, IdentityError{Code: "PasswordRequiresNonAlphanumeric", Description: "Passwords must have at least one non alphanumeric character."})
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, IdentityError{Code: "PasswordRequiresDigit", Description: "Passwords must have at least one digit ('0'-'9')."})
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, IdentityError{Code: "PasswordRequiresLower", Description: "Passwords must have at least one lowercase ('a'-'z')."})
	}
	if p.RequireUppercase && !hasUpper {
		errs = append(errs, IdentityError{Code: "PasswordRequiresUpper", Description: "Passwords must have at least one uppercase ('A'-'Z')."})
	}
	if len(distinct) < p.RequiredUniqueChars {
		errs = append(errs, IdentityError{
			Code:        "PasswordRequiresUniqueChars",
			Description: "Passwords must use at least " + strconv.Itoa(p.RequiredUniqueChars) + " different characters.",
		})
	}

	return errs
}
