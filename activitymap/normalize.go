package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	login "github.com/goliatone/go-login"
)

const (
	// MetadataKeyReason stores login.ActivityEvent.Reason.
	MetadataKeyReason = "reason"
	// MetadataKeyOutcome stores "success" or "failure" derived from the event type.
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "login"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(login.ActivityEvent) string
}

// Normalize converts a login.ActivityEvent into a generic normalized shape.
func Normalize(event login.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := strings.TrimSpace(event.Username)
	if actorID == "" {
		actorID = options.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink returns a login.ActivitySink that normalizes every event before
// handing it to fn.
func Sink(fn func(context.Context, Normalized) error, opts ...Option) login.ActivitySink {
	return login.ActivitySinkFunc(func(ctx context.Context, event login.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, Normalize(event, opts...))
	})
}

// Outcome classifies an event type as "success" or "failure".
func Outcome(eventType login.ActivityEventType) string {
	switch eventType {
	case login.ActivityEventLoginFailure,
		login.ActivityEventRememberMeTheft,
		login.ActivityEventRememberMeRejected,
		login.ActivityEventNonceRejected,
		login.ActivityEventActivationFailure,
		login.ActivityEventRegisterFailure,
		login.ActivityEventAccessDenied:
		return "failure"
	default:
		return "success"
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(login.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no username.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event login.ActivityEvent, resolver func(login.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.Username)
}

func normalizeMetadata(event login.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+2)
	maps.Copy(metadata, event.Metadata)

	if reason := strings.TrimSpace(event.Reason); reason != "" {
		if _, exists := metadata[MetadataKeyReason]; !exists {
			metadata[MetadataKeyReason] = reason
		}
	}

	metadata[MetadataKeyOutcome] = Outcome(event.EventType)
	return metadata
}
