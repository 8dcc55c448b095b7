package provision

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty")

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or the package default when cost
// is zero.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = passwordHashCost()
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(_ *User, password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify checks password against hash. Hashes produced with a lower cost than
// the current one verify as VerificationSuccessRehashNeeded.
func (h *BcryptHasher) Verify(_ *User, hash, password string) VerificationResult {
	if hash == "" || password == "" {
		return VerificationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return VerificationFailed
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err == nil && cost < h.cost {
		return VerificationSuccessRehashNeeded
	}

	return VerificationSuccess
}
