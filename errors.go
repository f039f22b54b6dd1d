package login

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidRequest        = "INVALID_REQUEST"
	TextCodeInvalidCredentials    = "LOGIN_FAILED"
	TextCodeAccountDisabled       = "LOGIN_ACCOUNT_DISABLED"
	TextCodeRememberMeStolen      = "REMEMBER_ME_STOLEN_COOKIE"
	TextCodeRememberMeInvalid     = "REMEMBER_ME_INVALID"
	TextCodeActivationExpired     = "ACTIVATION_LINK_EXPIRED"
	TextCodeUsernameInvalid       = "USERNAME_NOT_VALID"
	TextCodeUsernameTaken         = "USERNAME_NOT_AVAILABLE"
	TextCodePasswordWeak          = "PASSWORD_NOT_VALID"
	TextCodePasswordMismatch      = "PASSWORDS_DO_NOT_MATCH"
	TextCodeEmailInvalid          = "EMAIL_NOT_VALID"
	TextCodeRegistrationDisabled  = "REGISTRATION_DISABLED"
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeRememberMeNotFound    = "REMEMBER_ME_NOT_FOUND"
	TextCodeEmailNotConfigured    = "EMAIL_NOT_CONFIGURED"
	TextCodeEmailSendingFailure   = "EMAIL_SENDING_FAILURE"
	TextCodeUserNeedsEmail        = "USER_NEEDS_EMAIL_FIELD"
	TextCodeAccessDenied          = "ACCESS_DENIED"
	TextCodeEmptyString           = "EMPTY_STRING"
	TextCodeInvalidSessionContent = "INVALID_SESSION"
	TextCodeInvalidTransition     = "INVALID_USER_STATE_TRANSITION"
)

// ErrInvalidRequest is returned when a nonce fails verification or an
// activation link does not match. It shares its message with
// ErrActivationMismatch and ErrActivationNotPending.
var ErrInvalidRequest = goerrors.New("invalid request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
var ErrInvalidCredentials = goerrors.New("username or password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is returned when the password is right but the account
// has not been activated.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrTheftDetected is returned when a known remember-me series is presented
// with a stale token.
var ErrTheftDetected = goerrors.New("remember me cookie was stolen, all sessions for the series were revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeRememberMeStolen).
	WithCode(goerrors.CodeUnauthorized)

// ErrRememberMeInvalid is returned for unknown or expired series.
var ErrRememberMeInvalid = goerrors.New("remember me cookie is not valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeRememberMeInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrActivationExpired = goerrors.New("activation link expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeActivationExpired).
	WithCode(goerrors.CodeBadRequest)

var ErrActivationMismatch = goerrors.New("invalid request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

var ErrActivationNotPending = goerrors.New("invalid request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

var ErrUsernameInvalid = goerrors.New("username should be between 3 and 16 characters, including lowercase letters, numbers, underscores, and hyphens", goerrors.CategoryValidation).
	WithTextCode(TextCodeUsernameInvalid).
	WithCode(goerrors.CodeBadRequest)

var ErrUsernameTaken = goerrors.New("username is not available", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

var ErrPasswordWeak = goerrors.New("password must contain at least one number and one uppercase and lowercase letter, and at least 8 or more characters", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordWeak).
	WithCode(goerrors.CodeBadRequest)

var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrEmailInvalid = goerrors.New("email is not valid", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmailInvalid).
	WithCode(goerrors.CodeBadRequest)

var ErrRegistrationDisabled = goerrors.New("user registration is disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRegistrationDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is returned by CredentialStore implementations.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRememberMeNotFound is returned by RememberMeRepository implementations.
var ErrRememberMeNotFound = goerrors.New("remember me series not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRememberMeNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrEmailNotConfigured = goerrors.New("email is not configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeEmailNotConfigured).
	WithCode(goerrors.CodeInternal)

var ErrEmailSendFailure = goerrors.New("email sending failure", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailSendingFailure).
	WithCode(goerrors.CodeInternal)

var ErrUserNeedsEmail = goerrors.New("user needs an email field", goerrors.CategoryValidation).
	WithTextCode(TextCodeUserNeedsEmail).
	WithCode(goerrors.CodeBadRequest)

var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("empty string not allowed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyString).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned by ComparePasswordAndHash.
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrInvalidSession is returned when a session cookie cannot be decoded.
var ErrInvalidSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSessionContent).
	WithCode(goerrors.CodeUnauthorized)

var recoverable = []error{
	ErrInvalidRequest,
	ErrInvalidCredentials,
	ErrAccountDisabled,
	ErrTheftDetected,
	ErrRememberMeInvalid,
	ErrActivationExpired,
	ErrActivationMismatch,
	ErrActivationNotPending,
	ErrUsernameInvalid,
	ErrUsernameTaken,
	ErrPasswordWeak,
	ErrPasswordMismatch,
	ErrEmailInvalid,
	ErrRegistrationDisabled,
	ErrUserNeedsEmail,
	ErrEmailNotConfigured,
	ErrEmailSendFailure,
	ErrAccessDenied,
	ErrInvalidSession,
	ErrInvalidTransition,
}

// IsRecoverable reports whether err is a user facing outcome that should be
// shown as a message. Anything else is an infrastructure failure.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FieldError ties a validation failure to the form field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// FieldOf returns the form field tagged on err, or an empty string.
func FieldOf(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

// MessageOf returns the user facing message for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return err.Error()
}

// TextCodeOf returns the text code for err, if any.
func TextCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// wrapInternal marks err as an infrastructure failure. Errors that already
// carry a category keep it, so sentinels still match with errors.Is.
func wrapInternal(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}
