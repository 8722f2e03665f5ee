package identity

import (
	"context"
	"errors"

	"github.com/kanbanlab/kanban-client/internal/identity/domain"
)

// Provider codes surfaced by the hosted identity service. Unknown
// codes are mapped to a generic user-facing message by the session.
const (
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeOperationNotAllow  = "OPERATION_NOT_ALLOWED"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeUserDisabled       = "USER_DISABLED"
	CodeEmailNotFound      = "EMAIL_NOT_FOUND"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeNetworkFailure     = "NETWORK_REQUEST_FAILED"
	CodeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
)

// AuthError carries the provider error code alongside the underlying
// transport error so callers can map it to a user-facing message.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrorCode extracts the provider code from err, or "" when err is
// not an AuthError.
func ErrorCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// StateListener receives sign-in state changes. The user is nil after
// a sign-out.
type StateListener func(user *domain.User)

// Provider abstracts the hosted identity service. Implementations
// must emit a state-change notification after every successful
// sign-in and sign-out.
type Provider interface {
	// SignUp creates a new identity. displayName may be empty.
	SignUp(ctx context.Context, email, password, displayName string) (*domain.Credential, error)

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*domain.Credential, error)

	// SignInWithIDP authenticates with a federated provider's ID
	// token (e.g. a Google OpenID Connect token).
	SignInWithIDP(ctx context.Context, providerID, idToken string) (*domain.Credential, error)

	// SignOut clears the provider-side session state, if any, and
	// emits a nil-user state change.
	SignOut(ctx context.Context) error

	// OnStateChange registers a listener for sign-in state changes
	// and returns its unsubscribe func. The session registers exactly
	// one listener for the process lifetime.
	OnStateChange(fn StateListener) (unsubscribe func())
}
