package provision_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	provision "github.com/goliatone/go-provision"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockIdentityStore implements provision.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) CreateUser(ctx context.Context, user *provision.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockIdentityStore) DeleteUser(ctx context.Context, user *provision.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockIdentityStore) FindByUsername(ctx context.Context, username string) (*provision.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*provision.User)
	return user, args.Error(1)
}

func (m *MockIdentityStore) FindByID(ctx context.Context, id uuid.UUID) (*provision.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*provision.User)
	return user, args.Error(1)
}

func (m *MockIdentityStore) AddToRoles(ctx context.Context, user *provision.User, roles []string) error {
	return m.Called(ctx, user, roles).Error(0)
}

func (m *MockIdentityStore) AddClaims(ctx context.Context, user *provision.User, claims []provision.Claim) error {
	return m.Called(ctx, user, claims).Error(0)
}

func (m *MockIdentityStore) GetClaims(ctx context.Context, user *provision.User) ([]provision.Claim, error) {
	args := m.Called(ctx, user)
	claims, _ := args.Get(0).([]provision.Claim)
	return claims, args.Error(1)
}

func (m *MockIdentityStore) GetRoles(ctx context.Context, user *provision.User) ([]string, error) {
	args := m.Called(ctx, user)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

func (m *MockIdentityStore) ConfirmEmail(ctx context.Context, user *provision.User, token string) error {
	return m.Called(ctx, user, token).Error(0)
}

func (m *MockIdentityStore) GenerateEmailConfirmationToken(ctx context.Context, user *provision.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityStore) GeneratePasswordResetToken(ctx context.Context, user *provision.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityStore) ResetPassword(ctx context.Context, user *provision.User, token, newPassword string) error {
	return m.Called(ctx, user, token, newPassword).Error(0)
}

func (m *MockIdentityStore) ChangePassword(ctx context.Context, user *provision.User, currentPassword, newPassword string) error {
	return m.Called(ctx, user, currentPassword, newPassword).Error(0)
}

func (m *MockIdentityStore) RemovePassword(ctx context.Context, user *provision.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockIdentityStore) AddPassword(ctx context.Context, user *provision.User, password string) error {
	return m.Called(ctx, user, password).Error(0)
}

// MockHasher implements provision.Hasher
type MockHasher struct {
	mock.Mock
}

func (m *MockHasher) Hash(user *provision.User, password string) (string, error) {
	args := m.Called(user, password)
	return args.String(0), args.Error(1)
}

func (m *MockHasher) Verify(user *provision.User, hash, password string) provision.VerificationResult {
	args := m.Called(user, hash, password)
	return args.Get(0).(provision.VerificationResult)
}

// MockNotifier implements provision.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendEmail(ctx context.Context, bearerToken string, msg provision.EmailMessage) error {
	return m.Called(ctx, bearerToken, msg).Error(0)
}

// MockTokenIssuer implements provision.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueClientToken(ctx context.Context, credentials provision.ClientCredentials, lifetime time.Duration) (string, error) {
	args := m.Called(ctx, credentials, lifetime)
	return args.String(0), args.Error(1)
}

// MockClientResolver implements provision.ClientResolver
type MockClientResolver struct {
	mock.Mock
}

func (m *MockClientResolver) FindClient(ctx context.Context, clientID string) (*provision.Client, error) {
	args := m.Called(ctx, clientID)
	client, _ := args.Get(0).(*provision.Client)
	return client, args.Error(1)
}

// staticTokens is a provision.TokenSource returning a fixed token.
type staticTokens struct {
	token       string
	err         error
	invalidated int
}

func (s *staticTokens) GetToken(context.Context) (string, error) {
	return s.token, s.err
}

func (s *staticTokens) Invalidate() {
	s.invalidated++
}

// recordingSink captures activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []provision.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event provision.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []provision.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provision.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// testLogger captures log lines by level.
type testLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newTestLogger() *testLogger {
	return &testLogger{lines: map[string][]string{}}
}

func (l *testLogger) Debug(msg string, args ...any) { l.log("debug", msg, args...) }
func (l *testLogger) Info(msg string, args ...any)  { l.log("info", msg, args...) }
func (l *testLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args...) }
func (l *testLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }

func (l *testLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], fmt.Sprint(append([]any{msg}, args...)...))
}

func (l *testLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines[level])
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
