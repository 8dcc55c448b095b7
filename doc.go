// Package provision administers identity records (users, roles, claims) and drives
// the credential lifecycle around them: provisioning, email confirmation, password
// reset and forced password rotation with notification.
//
// Provisioning:
//   - Orchestrator.CreateUser composes several independent IdentityStore calls.
//     ProvisioningSaga walks the fixed create -> roles -> claims sequence and deletes
//     the user again when a follow-on step fails, so a half-provisioned user never
//     outlives the call. A failed cleanup surfaces as CLEANUP_FAILED and carries both
//     causes.
//
// Credential lifecycle:
//   - ChangePassword, ConfirmPasswordReset and RequestPasswordReset never reveal
//     whether a username exists. Password outcomes are tagged (PasswordOutcome) so
//     callers do not infer state from an empty redirect.
//   - SendWelcomeEmail rotates the password with a PasswordGenerator and mails it.
//
// Notifications:
//   - Outbound email is best-effort. TokenCache keeps a single bearer token for the
//     Notifier and only refreshes it when it gets close to expiry.
//
// Collaborators (IdentityStore, Hasher, Notifier, TokenIssuer, ClientResolver) are
// interfaces; Bun-backed implementations live in the repository package and
// notifier transports in the notify package.
package provision
