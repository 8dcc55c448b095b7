package provision

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidSagaTransition = "INVALID_SAGA_TRANSITION"

// SagaState is a step of the create-user workflow.
type SagaState string

const (
	SagaPending            SagaState = "pending"
	SagaCreated            SagaState = "created"
	SagaRolesAssigning     SagaState = "roles_assigning"
	SagaClaimsAssigning    SagaState = "claims_assigning"
	SagaComplete           SagaState = "complete"
	SagaAborted            SagaState = "aborted"
	SagaCompensating       SagaState = "compensating"
	SagaCompensated        SagaState = "compensated"
	SagaCompensationFailed SagaState = "compensation_failed"
)

// Terminal reports whether no further transition is possible from s.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaComplete, SagaAborted, SagaCompensated, SagaCompensationFailed:
		return true
	}
	return false
}

// SagaTransition is a single recorded state change.
type SagaTransition struct {
	From SagaState
	To   SagaState
	At   time.Time
}

// ProvisioningPlan is the work a saga performs: create User, then add Roles,
// then add Claims.
type ProvisioningPlan struct {
	User   *User
	Roles  []string
	Claims []Claim
}

// ProvisioningSaga runs the create-user workflow once. Once the user has been
// created any later failure deletes it again before Run returns.
type ProvisioningSaga struct {
	store        IdentityStore
	transitions  map[SagaState]map[SagaState]struct{}
	state        SagaState
	history      []SagaTransition
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
	actor        ActorRef
}

// SagaOption customizes a ProvisioningSaga.
type SagaOption func(*ProvisioningSaga)

// WithSagaLogger sets the logger.
func WithSagaLogger(logger Logger) SagaOption {
	return func(s *ProvisioningSaga) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSagaActivitySink sets the sink receiving one event per transition.
func WithSagaActivitySink(sink ActivitySink) SagaOption {
	return func(s *ProvisioningSaga) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithSagaClock injects a custom clock (useful for tests).
func WithSagaClock(clock func() time.Time) SagaOption {
	return func(s *ProvisioningSaga) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSagaActor sets the actor reported on activity events.
func WithSagaActor(actor ActorRef) SagaOption {
	return func(s *ProvisioningSaga) {
		s.actor = actor
	}
}

// NewProvisioningSaga returns a saga in the pending state.
func NewProvisioningSaga(store IdentityStore, opts ...SagaOption) *ProvisioningSaga {
	s := &ProvisioningSaga{
		store: store,
		transitions: map[SagaState]map[SagaState]struct{}{
			SagaPending: {
				SagaCreated: {},
				SagaAborted: {},
			},
			SagaCreated: {
				SagaRolesAssigning:  {},
				SagaClaimsAssigning: {},
				SagaComplete:        {},
				SagaCompensating:    {},
			},
			SagaRolesAssigning: {
				SagaClaimsAssigning: {},
				SagaComplete:        {},
				SagaCompensating:    {},
			},
			SagaClaimsAssigning: {
				SagaComplete:     {},
				SagaCompensating: {},
			},
			SagaCompensating: {
				SagaCompensated:        {},
				SagaCompensationFailed: {},
			},
		},
		state:        SagaPending,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// State returns the current state.
func (s *ProvisioningSaga) State() SagaState {
	return s.state
}

// History returns the transitions taken so far.
func (s *ProvisioningSaga) History() []SagaTransition {
	return append([]SagaTransition(nil), s.history...)
}

// Run executes plan. A failed create leaves nothing behind and ends in aborted.
// A failure after create runs compensation on a context detached from ctx
// cancellation; when the delete itself fails Run returns a CLEANUP_FAILED error
// carrying both causes.
func (s *ProvisioningSaga) Run(ctx context.Context, plan ProvisioningPlan) error {
	if s.state != SagaPending {
		return s.invalidTransition(SagaCreated, "saga already ran")
	}
	if plan.User == nil {
		return goerrors.New("provisioning plan requires a user", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidationFailed)
	}

	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), "user provisioning")
	default:
	}

	if err := s.store.CreateUser(ctx, plan.User); err != nil {
		if terr := s.transition(ctx, plan.User, SagaAborted); terr != nil {
			return terr
		}
		return identityOperationFailed("create_user", err)
	}
	if err := s.transition(ctx, plan.User, SagaCreated); err != nil {
		return err
	}

	if len(plan.Roles) > 0 {
		if err := s.transition(ctx, plan.User, SagaRolesAssigning); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return s.compensate(ctx, plan.User, cancelled(err, "role assignment"))
		}
		if err := s.store.AddToRoles(ctx, plan.User, plan.Roles); err != nil {
			return s.compensate(ctx, plan.User, identityOperationFailed("add_to_roles", err))
		}
	}

	if len(plan.Claims) > 0 {
		if err := s.transition(ctx, plan.User, SagaClaimsAssigning); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return s.compensate(ctx, plan.User, cancelled(err, "claim assignment"))
		}
		if err := s.store.AddClaims(ctx, plan.User, plan.Claims); err != nil {
			return s.compensate(ctx, plan.User, identityOperationFailed("add_claims", err))
		}
	}

	return s.transition(ctx, plan.User, SagaComplete)
}

func (s *ProvisioningSaga) compensate(ctx context.Context, user *User, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.transition(ctx, user, SagaCompensating); err != nil {
		return err
	}

	s.logger.Warn("provisioning failed, removing partially provisioned user",
		"user_id", user.ID, "username", user.Username, "error", cause)

	if err := s.store.DeleteUser(ctx, user); err != nil {
		failure := cleanupFailed(cause, err)
		s.logger.Error("failed to remove partially provisioned user",
			"user_id", user.ID, "username", user.Username, "original_error", cause, "cleanup_error", err)
		if terr := s.transition(ctx, user, SagaCompensationFailed); terr != nil {
			return goerrors.Join(failure, terr)
		}
		return failure
	}

	if err := s.transition(ctx, user, SagaCompensated); err != nil {
		return err
	}
	return cause
}

func (s *ProvisioningSaga) transition(ctx context.Context, user *User, to SagaState) error {
	from := s.state
	if allowed, ok := s.transitions[from]; !ok {
		return s.invalidTransition(to, "no transitions from state")
	} else if _, ok := allowed[to]; !ok {
		return s.invalidTransition(to, "transition not allowed")
	}

	at := s.now()
	s.state = to
	s.history = append(s.history, SagaTransition{From: from, To: to, At: at})

	s.logger.Debug("provisioning saga transition", "user_id", user.ID, "from", from, "to", to)

	activityRecorder{sink: s.activitySink, logger: s.logger, now: s.now}.record(ctx, ActivityEvent{
		EventType:  ActivityEventSagaTransition,
		Actor:      s.actor,
		UserID:     user.ID.String(),
		Username:   user.Username,
		FromState:  from,
		ToState:    to,
		OccurredAt: at,
	})
	return nil
}

func (s *ProvisioningSaga) invalidTransition(to SagaState, reason string) error {
	return goerrors.New("invalid provisioning saga transition", goerrors.CategoryInternal).
		WithTextCode(textCodeInvalidSagaTransition).
		WithMetadata(map[string]any{
			"from":   s.state,
			"to":     to,
			"reason": reason,
		})
}
