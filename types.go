package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IdentityStore persists users, role membership and claims. Operations that fail
// for domain reasons return IdentityErrors; FindByUsername and FindByID return
// ErrUserNotFound when there is no match.
type IdentityStore interface {
	CreateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, user *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	AddToRoles(ctx context.Context, user *User, roles []string) error
	AddClaims(ctx context.Context, user *User, claims []Claim) error
	GetClaims(ctx context.Context, user *User) ([]Claim, error)
	GetRoles(ctx context.Context, user *User) ([]string, error)
	ConfirmEmail(ctx context.Context, user *User, token string) error
	GenerateEmailConfirmationToken(ctx context.Context, user *User) (string, error)
	GeneratePasswordResetToken(ctx context.Context, user *User) (string, error)
	ResetPassword(ctx context.Context, user *User, token, newPassword string) error
	ChangePassword(ctx context.Context, user *User, currentPassword, newPassword string) error
	RemovePassword(ctx context.Context, user *User) error
	AddPassword(ctx context.Context, user *User, password string) error
}

// VerificationResult is the outcome of Hasher.Verify.
type VerificationResult int

const (
	VerificationFailed VerificationResult = iota
	VerificationSuccess
	VerificationSuccessRehashNeeded
)

func (r VerificationResult) String() string {
	switch r {
	case VerificationSuccess:
		return "success"
	case VerificationSuccessRehashNeeded:
		return "success_rehash_needed"
	default:
		return "failed"
	}
}

// Succeeded reports whether the password matched, regardless of rehash needs.
func (r VerificationResult) Succeeded() bool {
	return r == VerificationSuccess || r == VerificationSuccessRehashNeeded
}

// Hasher turns plaintext secrets into stored hashes and verifies them.
type Hasher interface {
	Hash(user *User, password string) (string, error)
	Verify(user *User, hash, password string) VerificationResult
}

// EmailMessage is the payload handed to a Notifier.
type EmailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"htmlBody"`
	IsHTML  bool     `json:"isHtml"`
}

// Notifier sends templated email using a bearer token. Failures are expected to
// be transient and are never fatal to the calling workflow.
type Notifier interface {
	SendEmail(ctx context.Context, bearerToken string, msg EmailMessage) error
}

// ClientCredentials identify the outbound client used to call the Notifier.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// TokenIssuer issues bearer tokens for a client.
type TokenIssuer interface {
	IssueClientToken(ctx context.Context, credentials ClientCredentials, lifetime time.Duration) (string, error)
}

// TokenSource hands out a bearer token usable with the Notifier.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// ClientResolver looks up registered relying-party clients. It returns
// ErrClientNotFound when the client id is unknown.
type ClientResolver interface {
	FindClient(ctx context.Context, clientID string) (*Client, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	d.print("DBG", msg, args...)
}

func (d defLogger) Info(msg string, args ...any) {
	d.print("INF", msg, args...)
}

func (d defLogger) Warn(msg string, args ...any) {
	d.print("WRN", msg, args...)
}

func (d defLogger) Error(msg string, args ...any) {
	d.print("ERR", msg, args...)
}

func (defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[" + level + "] PROVISION " + msg)
	for i := 0; i < len(args); i += 2 {
		var val any = "!MISSING"
		if i+1 < len(args) {
			val = args[i+1]
		}
		fmt.Fprintf(&b, " %v=%v", args[i], val)
	}
	fmt.Println(b.String())
}
