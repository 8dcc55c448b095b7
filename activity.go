package provision

import (
	"context"
	"time"
)

// ActivityEventType enumerates the audit events emitted by the orchestrator.
type ActivityEventType string

const (
	ActivityEventSagaTransition         ActivityEventType = "provision.saga.transition"
	ActivityEventUserProvisioned        ActivityEventType = "provision.user.created"
	ActivityEventUserCompensated        ActivityEventType = "provision.user.compensated"
	ActivityEventCompensationFailed     ActivityEventType = "provision.user.compensation_failed"
	ActivityEventEmailConfirmed         ActivityEventType = "provision.email.confirmed"
	ActivityEventPasswordChanged        ActivityEventType = "provision.password.changed"
	ActivityEventPasswordResetRequested ActivityEventType = "provision.password.reset_requested"
	ActivityEventPasswordReset          ActivityEventType = "provision.password.reset"
	ActivityEventPasswordRotated        ActivityEventType = "provision.password.rotated"
	ActivityEventNotificationFailed     ActivityEventType = "provision.notification.failed"
)

// ActorRef identifies who or what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Username   string
	FromState  SagaState
	ToState    SagaState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Sink failures are logged and never
// affect the operation that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if err := normalizeActivitySink(r.sink).Record(ctx, event); err != nil {
		r.logger.Warn("activity sink error", "event", event.EventType, "error", err)
	}
}
