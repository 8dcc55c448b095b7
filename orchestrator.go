package provision

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-provision"

// Orchestrator drives user provisioning and the credential lifecycle on top of
// an IdentityStore. It holds no per-request state; the TokenSource is the only
// shared mutable collaborator.
type Orchestrator struct {
	store     IdentityStore
	clients   ClientResolver
	notifier  Notifier
	tokens    TokenSource
	config    Config
	hasher    Hasher
	generator *PasswordGenerator
	renderer  Renderer
	logger    Logger
	activity  ActivitySink
	metrics   *Metrics
	tracer    trace.Tracer
	actor     ActorRef
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// WithPublicOrigin sets the base URL used in confirmation and reset links.
func WithPublicOrigin(origin string) Option {
	return func(o *Orchestrator) {
		o.config.PublicOrigin = origin
	}
}

// WithSender sets the From address of outbound email.
func WithSender(address string) Option {
	return func(o *Orchestrator) {
		o.config.SenderAddress = address
	}
}

// WithPasswordPolicy sets the policy used for generated passwords.
func WithPasswordPolicy(policy PasswordPolicy) Option {
	return func(o *Orchestrator) {
		o.config.PasswordPolicy = policy
	}
}

// WithHasher overrides the bcrypt hasher.
func WithHasher(h Hasher) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithPasswordGenerator overrides the crypto/rand backed generator.
func WithPasswordGenerator(g *PasswordGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.generator = g
		}
	}
}

// WithRenderer overrides the pongo2 email renderer.
func WithRenderer(r Renderer) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithActivitySink sets the sink receiving audit events.
func WithActivitySink(sink ActivitySink) Option {
	return func(o *Orchestrator) {
		o.activity = normalizeActivitySink(sink)
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithActor sets the actor reported on activity events.
func WithActor(actor ActorRef) Option {
	return func(o *Orchestrator) {
		o.actor = actor
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// NewOrchestrator wires the orchestrator. store, clients, notifier and tokens
// are required.
func NewOrchestrator(store IdentityStore, clients ClientResolver, notifier Notifier, tokens TokenSource, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:     store,
		clients:   clients,
		notifier:  notifier,
		tokens:    tokens,
		config:    DefaultConfig(),
		hasher:    NewBcryptHasher(0),
		generator: defaultPasswordGenerator,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.store == nil || o.clients == nil || o.notifier == nil || o.tokens == nil {
		return nil, goerrors.New("orchestrator requires identity store, client resolver, notifier and token source", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidationFailed)
	}

	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	if o.renderer == nil {
		renderer, err := NewTemplateRenderer(nil)
		if err != nil {
			return nil, err
		}
		o.renderer = renderer
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	return o, nil
}

// Config returns the active configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

func (o *Orchestrator) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "provision."+operation, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || goerrors.IsNotFound(err)
}

// findUser returns nil, nil when the username does not resolve.
func (o *Orchestrator) findUser(ctx context.Context, username string) (*User, error) {
	user, err := o.store.FindByUsername(ctx, username)
	if err != nil {
		if isUserNotFound(err) {
			return nil, nil
		}
		return nil, identityOperationFailed("find_by_username", err)
	}
	return user, nil
}

func (o *Orchestrator) resolveRedirect(ctx context.Context, clientID string) (string, error) {
	client, err := o.clients.FindClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) || goerrors.IsNotFound(err) {
			return "", clientNotFound(err, clientID)
		}
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "failed to resolve client").
			WithMetadata(map[string]any{"client_id": clientID})
	}
	if client == nil {
		return "", clientNotFound(ErrClientNotFound, clientID)
	}
	return client.RedirectURI, nil
}

// deliver renders and sends an email. Failures are logged and recorded, never
// returned: the caller's workflow has already succeeded.
func (o *Orchestrator) deliver(ctx context.Context, template string, user *User, data map[string]any) bool {
	ctx, span := o.startSpan(ctx, "Deliver", attribute.String("template", template))

	err := o.send(ctx, template, user, data)
	o.metrics.notification(template, err)
	endSpan(span, err)

	if err == nil {
		return true
	}

	failure := notificationFailed(err, template).
		WithMetadata(map[string]any{"user_id": user.ID.String()})
	o.logger.Error("notification failed", "template", template, "user_id", user.ID, "username", user.Username, "error", failure)
	o.record(ctx, ActivityEvent{
		EventType: ActivityEventNotificationFailed,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Metadata:  map[string]any{"template": template, "error": err.Error()},
	})
	return false
}

func (o *Orchestrator) send(ctx context.Context, template string, user *User, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	data["user"] = user

	msg, err := o.renderer.Render(template, data)
	if err != nil {
		return err
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	err = o.notifier.SendEmail(ctx, token, EmailMessage{
		From:    o.config.SenderAddress,
		To:      []string{user.Email},
		Subject: msg.Subject,
		Body:    msg.Body,
		IsHTML:  true,
	})
	if errors.Is(err, ErrNotifierUnauthorized) {
		if inv, ok := o.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
	return err
}

func (o *Orchestrator) record(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = o.actorFor(ctx)
	}
	activityRecorder{sink: o.activity, logger: o.logger, now: o.now}.record(ctx, event)
}

func (o *Orchestrator) actorFor(ctx context.Context) ActorRef {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return o.actor
}

func (o *Orchestrator) checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), operation)
	default:
		return nil
	}
}
