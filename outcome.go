package provision

// OutcomeStatus tags the result of a password operation.
type OutcomeStatus int

const (
	// OutcomeNotFound means the username did not resolve. Callers should respond
	// exactly as they would for a failed attempt.
	OutcomeNotFound OutcomeStatus = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// PasswordOutcome is returned by ChangePassword and ConfirmPasswordReset.
// Redirect is empty unless the client resolved.
type PasswordOutcome struct {
	Status   OutcomeStatus  `json:"status"`
	Redirect string         `json:"redirect,omitempty"`
	Errors   IdentityErrors `json:"errors,omitempty"`
}

// Succeeded reports whether the store applied the password change.
func (o PasswordOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// Found reports whether the username resolved to a user.
func (o PasswordOutcome) Found() bool {
	return o.Status != OutcomeNotFound
}
