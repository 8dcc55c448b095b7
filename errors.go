package provision

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes used on every error returned by the orchestrator.
const (
	TextCodeValidationFailed        = "VALIDATION_FAILED"
	TextCodePolicyViolation         = "POLICY_VIOLATION"
	TextCodeHashingFailed           = "HASHING_FAILED"
	TextCodeIdentityOperationFailed = "IDENTITY_OPERATION_FAILED"
	TextCodeCleanupFailed           = "CLEANUP_FAILED"
	TextCodeNotFound                = "NOT_FOUND"
	TextCodeClientNotFound          = "CLIENT_NOT_FOUND"
	TextCodeNotificationFailed      = "NOTIFICATION_FAILED"
	TextCodeCancelled               = "CANCELLED"
)

// ErrUserNotFound is returned by IdentityStore lookups with no match.
var ErrUserNotFound = errors.New("user not found")

// ErrClientNotFound is returned by ClientResolver for unknown client ids.
var ErrClientNotFound = errors.New("client not found")

// ErrNotifierUnauthorized is returned by notifiers when the bearer token was rejected.
var ErrNotifierUnauthorized = errors.New("notifier rejected bearer token")

// IdentityError is a single structured failure reported by the IdentityStore.
type IdentityError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// IdentityErrors is the error list returned by IdentityStore operations that
// failed for domain reasons (duplicate username, invalid token, ...).
type IdentityErrors []IdentityError

func (e IdentityErrors) Error() string {
	if len(e) == 0 {
		return "identity operation failed"
	}
	parts := make([]string, 0, len(e))
	for _, ie := range e {
		parts = append(parts, ie.Code+": "+ie.Description)
	}
	return strings.Join(parts, "; ")
}

// Codes returns the error codes in order.
func (e IdentityErrors) Codes() []string {
	codes := make([]string, 0, len(e))
	for _, ie := range e {
		codes = append(codes, ie.Code)
	}
	return codes
}

// AsIdentityErrors extracts the IdentityErrors carried by err, if any.
func AsIdentityErrors(err error) (IdentityErrors, bool) {
	var ie IdentityErrors
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsTextCode reports whether err carries the given text code.
func IsTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

func newError(source error, category goerrors.Category, textCode, message string) *goerrors.Error {
	err := goerrors.New(message, category).WithTextCode(textCode)
	err.Source = source
	return err
}

func validationFailed(err error, message string) *goerrors.Error {
	rich := goerrors.FromOzzoValidation(err, message)
	if rich == nil {
		rich = goerrors.New(message, goerrors.CategoryValidation)
	}
	return rich.WithTextCode(TextCodeValidationFailed).WithCode(goerrors.CodeBadRequest)
}

func policyViolation(source error, message string) *goerrors.Error {
	return newError(source, goerrors.CategoryBadInput, TextCodePolicyViolation, message).
		WithCode(goerrors.CodeBadRequest)
}

func hashingFailed(source error) *goerrors.Error {
	return newError(source, goerrors.CategoryInternal, TextCodeHashingFailed, "password hashing produced no usable hash").
		WithCode(goerrors.CodeInternal)
}

func identityOperationFailed(operation string, source error) *goerrors.Error {
	meta := map[string]any{"operation": operation}
	if ie, ok := AsIdentityErrors(source); ok {
		meta["errors"] = ie.Codes()
	}
	return newError(source, goerrors.CategoryOperation, TextCodeIdentityOperationFailed, "identity store "+operation+" failed").
		WithMetadata(meta)
}

func cleanupFailed(original, cleanup error) *goerrors.Error {
	return newError(goerrors.Join(original, cleanup), goerrors.CategoryInternal, TextCodeCleanupFailed,
		"failed to remove partially provisioned user").
		WithCode(goerrors.CodeInternal).
		WithSeverity(goerrors.SeverityCritical).
		WithMetadata(map[string]any{
			"original_error": original.Error(),
			"cleanup_error":  cleanup.Error(),
		})
}

func notFound(source error, message string) *goerrors.Error {
	return newError(source, goerrors.CategoryNotFound, TextCodeNotFound, message).
		WithCode(goerrors.CodeNotFound)
}

func clientNotFound(source error, clientID string) *goerrors.Error {
	return newError(source, goerrors.CategoryNotFound, TextCodeClientNotFound, "client is not registered").
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"client_id": clientID})
}

func notificationFailed(source error, template string) *goerrors.Error {
	return newError(source, goerrors.CategoryExternal, TextCodeNotificationFailed, "notification delivery failed").
		WithMetadata(map[string]any{"template": template})
}

func cancelled(err error, operation string) *goerrors.Error {
	return newError(err, goerrors.CategoryOperation, TextCodeCancelled, "context cancelled during "+operation).
		WithMetadata(map[string]any{"operation": operation})
}
