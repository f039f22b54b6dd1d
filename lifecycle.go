package login

import (
	"context"
	"fmt"
	"maps"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// TransitionContext is passed to lifecycle hooks.
type TransitionContext struct {
	Actor    string
	User     *User
	From     UserState
	To       UserState
	Reason   string
	Metadata map[string]any
}

// TransitionHook runs before or after a state change is stored. A before
// hook error aborts the transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	reason      string
	metadata    map[string]any
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// WithTransitionReason records why the state changed.
func WithTransitionReason(reason string) TransitionOption {
	return func(o *transitionOptions) {
		o.reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(o *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(o.metadata, metadata)
	}
}

// WithBeforeTransitionHook adds a hook executed before the user is saved.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.beforeHooks = append(o.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the user is saved.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.afterHooks = append(o.afterHooks, h)
		}
	}
}

// LifecycleOption customizes UserLifecycle.
type LifecycleOption func(*UserLifecycle)

// WithLifecycleRememberMe revokes every remember-me series of a user when
// the account is disabled.
func WithLifecycleRememberMe(rm *RememberMe) LifecycleOption {
	return func(l *UserLifecycle) {
		l.rememberMe = rm
	}
}

func WithLifecycleClock(now Clock) LifecycleOption {
	return func(l *UserLifecycle) {
		l.now = normalizeClock(now)
	}
}

func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *UserLifecycle) {
		l.logger = normalizeLogger(logger)
	}
}

func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *UserLifecycle) {
		l.sink = sink
	}
}

// UserLifecycle moves accounts between the disabled and enabled states
// outside of the activation flow, for example from an operator command.
type UserLifecycle struct {
	store       CredentialStore
	transitions map[UserState]map[UserState]struct{}
	rememberMe  *RememberMe
	now         Clock
	logger      Logger
	sink        ActivitySink
}

// NewUserLifecycle returns a lifecycle backed by store.
func NewUserLifecycle(store CredentialStore, opts ...LifecycleOption) *UserLifecycle {
	l := &UserLifecycle{
		store: store,
		transitions: map[UserState]map[UserState]struct{}{
			UserStateDisabled: {UserStateEnabled: {}},
			UserStateEnabled:  {UserStateDisabled: {}},
		},
		now:    time.Now,
		logger: defaultLogger,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Enable activates username. A pending activation link stops working.
func (l *UserLifecycle) Enable(ctx context.Context, actor, username string, opts ...TransitionOption) (*User, error) {
	return l.Transition(ctx, actor, username, UserStateEnabled, opts...)
}

// Disable deactivates username.
func (l *UserLifecycle) Disable(ctx context.Context, actor, username string, opts ...TransitionOption) (*User, error) {
	return l.Transition(ctx, actor, username, UserStateDisabled, opts...)
}

// Transition moves username to target. Moving to the current state is a
// no-op and runs no hooks.
func (l *UserLifecycle) Transition(ctx context.Context, actor, username string, target UserState, opts ...TransitionOption) (*User, error) {
	user, err := l.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	from := user.State
	if from == target {
		return user, nil
	}

	if !l.canTransition(from, target) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, target)
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if actor == "" {
		actor = "system"
	}

	tc := TransitionContext{
		Actor:    actor,
		User:     user,
		From:     from,
		To:       target,
		Reason:   options.reason,
		Metadata: options.metadata,
	}

	if err := runTransitionHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	user.State = target
	user.UpdatedAt = l.now().UTC()
	if target == UserStateEnabled {
		user.ActivationToken = ""
	}

	if err := l.store.SaveUser(ctx, user); err != nil {
		return nil, wrapInternal(err, "failed to update user state")
	}

	if target == UserStateDisabled && l.rememberMe != nil {
		if n, err := l.rememberMe.RevokeAll(ctx, user.Username); err != nil {
			l.logger.Error("failed to revoke remember me series", "username", user.Username, "error", err)
		} else if n > 0 {
			l.logger.Debug("revoked remember me series", "username", user.Username, "count", n)
		}
	}

	l.logger.Info("user state changed", "username", user.Username, "from", string(from), "to", string(target), "actor", actor)

	meta := map[string]any{
		"actor": actor,
		"from":  string(from),
		"to":    string(target),
	}
	maps.Copy(meta, options.metadata)
	recorder{sink: l.sink, logger: l.logger, now: l.now}.
		emit(ctx, ActivityEventUserStateChanged, user.Username, options.reason, meta)

	if err := runTransitionHooks(ctx, options.afterHooks, tc); err != nil {
		return user, err
	}

	return user, nil
}

func (l *UserLifecycle) canTransition(from, to UserState) bool {
	allowed, ok := l.transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

func runTransitionHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}
