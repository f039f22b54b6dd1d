package login

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess       ActivityEventType = "login.success"
	ActivityEventLoginFailure       ActivityEventType = "login.failure"
	ActivityEventLogout             ActivityEventType = "login.logout"
	ActivityEventRememberMeLogin    ActivityEventType = "login.rememberme.success"
	ActivityEventRememberMeTheft    ActivityEventType = "login.rememberme.theft"
	ActivityEventRememberMeRejected ActivityEventType = "login.rememberme.rejected"
	ActivityEventExternalLogin      ActivityEventType = "login.external"
	ActivityEventNonceRejected      ActivityEventType = "login.nonce.rejected"
	ActivityEventActivationSent     ActivityEventType = "activation.sent"
	ActivityEventActivated          ActivityEventType = "activation.success"
	ActivityEventActivationFailure  ActivityEventType = "activation.failure"
	ActivityEventRegistered         ActivityEventType = "registration.success"
	ActivityEventRegisterFailure    ActivityEventType = "registration.failure"
	ActivityEventAccessDenied       ActivityEventType = "access.denied"
	ActivityEventUserStateChanged   ActivityEventType = "user.state_changed"
)

// ActivityEvent captures audit friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Username   string
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing and telemetry.
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

// MultiSink fans an event out to every sink. The first error is returned
// after all sinks ran.
type MultiSink []ActivitySink

// Record implements ActivitySink.
func (m MultiSink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
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

// recorder stamps and emits events, logging sink failures.
type recorder struct {
	sink   ActivitySink
	logger Logger
	now    Clock
}

func (r recorder) emit(ctx context.Context, kind ActivityEventType, username, reason string, meta map[string]any) {
	event := ActivityEvent{
		EventType:  kind,
		Username:   username,
		Reason:     reason,
		Metadata:   meta,
		OccurredAt: normalizeClock(r.now)().UTC(),
	}
	if err := normalizeActivitySink(r.sink).Record(ctx, event); err != nil {
		normalizeLogger(r.logger).Warn("activity sink error", "event", string(kind), "error", err)
	}
}
