package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/kanbanlab/kanban-client/config"
	"github.com/kanbanlab/kanban-client/internal/identity/domain"
)

// FirebaseProvider implements Provider against the Firebase Identity
// Toolkit REST API, authenticated with the project's web API key.
type FirebaseProvider struct {
	svc *identitytoolkit.Service

	mu        sync.Mutex
	listeners map[int]StateListener
	nextID    int
}

// NewFirebaseProvider builds the Identity Toolkit client. The web API
// key identifies the Firebase project the same way the browser SDK's
// config object does.
func NewFirebaseProvider(ctx context.Context, cfg *config.FirebaseConfig) (*FirebaseProvider, error) {
	if cfg.WebAPIKey == "" {
		return nil, fmt.Errorf("FIREBASE_WEB_API_KEY is required")
	}

	// The API key is the sole credential here; adding any other auth
	// option makes the client constructor reject the combination.
	svc, err := identitytoolkit.NewService(ctx, option.WithAPIKey(cfg.WebAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity toolkit service: %w", err)
	}

	return &FirebaseProvider{
		svc:       svc,
		listeners: make(map[int]StateListener),
	}, nil
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password, displayName string) (*domain.Credential, error) {
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}

	cred := &domain.Credential{
		User: domain.User{
			UID:         resp.LocalId,
			Email:       email,
			DisplayName: displayName,
		},
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}

	p.emit(&cred.User)
	return cred, nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*domain.Credential, error) {
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}

	user := domain.User{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
	}
	if verified, err := p.emailVerified(ctx, resp.IdToken); err == nil {
		user.EmailVerified = verified
	}

	cred := &domain.Credential{
		User:         user,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}

	p.emit(&cred.User)
	return cred, nil
}

func (p *FirebaseProvider) SignInWithIDP(ctx context.Context, providerID, idToken string) (*domain.Credential, error) {
	resp, err := p.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          fmt.Sprintf("id_token=%s&providerId=%s", idToken, providerID),
		RequestUri:        "http://localhost",
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}

	cred := &domain.Credential{
		User: domain.User{
			UID:           resp.LocalId,
			Email:         resp.Email,
			DisplayName:   resp.DisplayName,
			EmailVerified: resp.EmailVerified,
		},
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}

	p.emit(&cred.User)
	return cred, nil
}

// SignOut has no remote side: the Identity Toolkit issues stateless
// tokens. Emitting the nil-user change is what tears the session down.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	p.emit(nil)
	return nil
}

func (p *FirebaseProvider) OnStateChange(fn StateListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *FirebaseProvider) emit(user *domain.User) {
	p.mu.Lock()
	fns := make([]StateListener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

// emailVerified looks up the account record for the verification flag,
// which the password sign-in response does not carry.
func (p *FirebaseProvider) emailVerified(ctx context.Context, idToken string) (bool, error) {
	resp, err := p.svc.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: idToken,
	}).Context(ctx).Do()
	if err != nil {
		return false, translateError(err)
	}
	if len(resp.Users) == 0 {
		return false, fmt.Errorf("account not found for token")
	}
	return resp.Users[0].EmailVerified, nil
}

// translateError converts transport errors into AuthError values
// carrying the provider code. The toolkit reports codes in the error
// message, sometimes with a trailing explanation ("WEAK_PASSWORD :
// Password should be at least 6 characters").
func translateError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		code := gerr.Message
		if i := strings.IndexAny(code, " :"); i > 0 {
			code = code[:i]
		}
		return &AuthError{Code: code, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return &AuthError{Code: CodeNetworkFailure, Err: err}
	}

	return &AuthError{Code: "", Err: err}
}
