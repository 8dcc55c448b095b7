package provision

import (
	"crypto/rand"
	"io"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordGenerator produces random passwords that satisfy a PasswordPolicy.
type PasswordGenerator struct {
	random io.Reader
}

// PasswordGeneratorOption customizes a PasswordGenerator.
type PasswordGeneratorOption func(*PasswordGenerator)

// WithRandomSource overrides the entropy source (crypto/rand by default).
func WithRandomSource(r io.Reader) PasswordGeneratorOption {
	return func(g *PasswordGenerator) {
		if r != nil {
			g.random = r
		}
	}
}

// NewPasswordGenerator returns a generator backed by crypto/rand.
func NewPasswordGenerator(opts ...PasswordGeneratorOption) *PasswordGenerator {
	g := &PasswordGenerator{random: rand.Reader}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

var defaultPasswordGenerator = NewPasswordGenerator()

// GenerateRandomPassword generates a password for policy using crypto/rand.
func GenerateRandomPassword(policy PasswordPolicy) (string, error) {
	return defaultPasswordGenerator.Generate(policy)
}

// Generate returns a password with at least one character from every enabled
// class, at least RequiredLength characters and at least RequiredUniqueChars
// distinct characters. Unsatisfiable policies fail with POLICY_VIOLATION before
// any character is drawn.
func (g *PasswordGenerator) Generate(policy PasswordPolicy) (string, error) {
	if err := policy.Validate(); err != nil {
		return "", policyViolation(err, "password policy cannot be satisfied").
			WithMetadata(map[string]any{
				"required_length":       policy.RequiredLength,
				"required_unique_chars": policy.RequiredUniqueChars,
				"available_chars":       policy.AvailableChars(),
			})
	}

	pool := policy.charPool()
	chars := make([]rune, 0, policy.RequiredLength)
	distinct := map[rune]struct{}{}

	insert := func(class string) error {
		c, err := g.pick(class)
		if err != nil {
			return err
		}
		pos, err := g.intn(len(chars) + 1)
		if err != nil {
			return err
		}
		chars = append(chars, 0)
		copy(chars[pos+1:], chars[pos:])
		chars[pos] = c
		distinct[c] = struct{}{}
		return nil
	}

	for _, class := range policy.enabledClasses() {
		if err := insert(class); err != nil {
			return "", randomFailure(err)
		}
	}

	// Generated passwords are never empty, even for a zero length policy with
	// no required classes.
	for len(chars) == 0 || len(chars) < policy.RequiredLength || len(distinct) < policy.RequiredUniqueChars {
		idx, err := g.intn(len(pool))
		if err != nil {
			return "", randomFailure(err)
		}
		if err := insert(pool[idx]); err != nil {
			return "", randomFailure(err)
		}
	}

	return string(chars), nil
}

func (g *PasswordGenerator) pick(class string) (rune, error) {
	runes := []rune(class)
	idx, err := g.intn(len(runes))
	if err != nil {
		return 0, err
	}
	return runes[idx], nil
}

func (g *PasswordGenerator) intn(n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	v, err := rand.Int(g.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randomFailure(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random source for password generation")
}
