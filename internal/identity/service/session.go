package service

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kanbanlab/kanban-client/internal/identity"
	"github.com/kanbanlab/kanban-client/internal/identity/domain"
)

// ProfileStore persists user profile documents.
type ProfileStore interface {
	Load(ctx context.Context, uid string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	TouchLastLogin(ctx context.Context, uid string, at time.Time) error
}

// ProfileCache is an optional read-through cache in front of the
// profile store. A nil cache is valid.
type ProfileCache interface {
	Get(ctx context.Context, uid string) (*domain.Profile, error)
	Set(ctx context.Context, p *domain.Profile) error
	Invalidate(ctx context.Context, uid string) error
}

// Result is the value every session operation returns. Operations
// never return Go errors to the caller: failures are translated into
// the Error string.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Error: messageFor(err)}
}

// Session holds the current-user state for one client process. It is
// constructed once at startup and injected into every component that
// needs current-user identity; there is no package-level session.
type Session struct {
	provider identity.Provider
	profiles ProfileStore
	cache    ProfileCache
	limiter  *rate.Limiter
	logger   *log.Logger

	mu      sync.RWMutex
	user    *domain.User
	profile *domain.Profile
	cred    *domain.Credential
	loading bool

	// registering is true while Register owns the profile write; the
	// sign-up state change arrives first and must not create the
	// document ahead of it.
	registering bool

	initOnce sync.Once
	unsub    func()
}

// Option configures a Session.
type Option func(*Session)

// WithProfileCache attaches a read-through profile cache.
func WithProfileCache(c ProfileCache) Option {
	return func(s *Session) { s.cache = c }
}

// WithRateLimiter overrides the auth-attempt limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithLogger overrides the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(provider identity.Provider, profiles ProfileStore, opts ...Option) *Session {
	s := &Session{
		provider: provider,
		profiles: profiles,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		logger:   log.Default(),
		loading:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init registers the session's state-change listener with the
// identity provider. It runs once per process lifetime; the listener
// is held until the process terminates and is never torn down.
//
// Tokens are not persisted across processes, so the initial state is
// always signed-out; Init applies that state synchronously, which is
// the first notification and clears the loading flag.
func (s *Session) Init() {
	s.initOnce.Do(func() {
		s.unsub = s.provider.OnStateChange(s.onStateChange)
		s.onStateChange(nil)
	})
}

// onStateChange atomically replaces the user snapshot and triggers
// the profile load. Later notifications overwrite earlier state in
// delivery order.
func (s *Session) onStateChange(user *domain.User) {
	s.mu.Lock()
	if user != nil {
		u := *user
		s.user = &u
	} else {
		s.user = nil
		s.profile = nil
		s.cred = nil
	}
	s.loading = false
	s.mu.Unlock()

	if user != nil {
		s.loadProfile(context.Background(), user.UID)
	}
}

// Register creates a new identity and writes the initial profile
// document. No secret material is ever persisted.
func (s *Session) Register(ctx context.Context, email, password, displayName string) Result {
	if !s.limiter.Allow() {
		return Result{Success: false, Error: authMessages[identity.CodeTooManyAttempts]}
	}

	s.setRegistering(true)
	defer s.setRegistering(false)

	cred, err := s.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		s.logger.Printf("register failed: %v", err)
		return failure(err)
	}

	now := time.Now()
	profile := &domain.Profile{
		UID:         cred.User.UID,
		DisplayName: domain.DefaultDisplayName(displayName, email),
		Email:       email,
		CreatedAt:   now,
		LastLogin:   now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		s.logger.Printf("register: profile create failed: %v", err)
		return failure(err)
	}

	s.setCredential(cred, profile)
	s.cacheProfile(ctx, profile)

	return Result{Success: true, Message: "Account created."}
}

// Login authenticates with email and password and merge-upserts the
// profile's lastLogin timestamp.
func (s *Session) Login(ctx context.Context, email, password string) Result {
	if !s.limiter.Allow() {
		return Result{Success: false, Error: authMessages[identity.CodeTooManyAttempts]}
	}

	cred, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Printf("login failed: %v", err)
		return failure(err)
	}

	if err := s.profiles.TouchLastLogin(ctx, cred.User.UID, time.Now()); err != nil {
		s.logger.Printf("login: lastLogin update failed: %v", err)
		return failure(err)
	}

	s.setCredential(cred, nil)
	s.invalidateProfile(ctx, cred.User.UID)

	return Result{Success: true, Message: "Signed in."}
}

// LoginWithGoogle authenticates with a Google ID token obtained from
// the OAuth authorization-code flow. A first federated sign-in
// creates the profile document; later ones only touch lastLogin.
func (s *Session) LoginWithGoogle(ctx context.Context, idToken string) Result {
	if !s.limiter.Allow() {
		return Result{Success: false, Error: authMessages[identity.CodeTooManyAttempts]}
	}

	cred, err := s.provider.SignInWithIDP(ctx, identity.GoogleProviderID, idToken)
	if err != nil {
		s.logger.Printf("google login failed: %v", err)
		return failure(err)
	}

	existing, err := s.profiles.Load(ctx, cred.User.UID)
	if err != nil {
		s.logger.Printf("google login: profile load failed: %v", err)
		return failure(err)
	}

	now := time.Now()
	if existing == nil {
		profile := &domain.Profile{
			UID:         cred.User.UID,
			DisplayName: domain.DefaultDisplayName(cred.User.DisplayName, cred.User.Email),
			Email:       cred.User.Email,
			CreatedAt:   now,
			LastLogin:   now,
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			s.logger.Printf("google login: profile create failed: %v", err)
			return failure(err)
		}
		s.setCredential(cred, profile)
		s.cacheProfile(ctx, profile)
	} else {
		if err := s.profiles.TouchLastLogin(ctx, cred.User.UID, now); err != nil {
			s.logger.Printf("google login: lastLogin update failed: %v", err)
			return failure(err)
		}
		s.setCredential(cred, nil)
		s.invalidateProfile(ctx, cred.User.UID)
	}

	return Result{Success: true, Message: "Signed in with Google."}
}

// Logout clears the local session state.
func (s *Session) Logout(ctx context.Context) Result {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Printf("logout failed: %v", err)
		return Result{Success: false, Error: messageFor(err)}
	}
	return Result{Success: true}
}

// loadProfile fetches (or lazily creates) the profile document for
// the signed-in user. Unexpected errors are logged and swallowed: the
// session proceeds with a nil profile.
func (s *Session) loadProfile(ctx context.Context, uid string) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, uid)
		if err != nil {
			s.logger.Printf("profile cache read failed: %v", err)
		} else if cached != nil {
			s.setProfile(cached)
			return
		}
	}

	profile, err := s.profiles.Load(ctx, uid)
	if err != nil {
		s.logger.Printf("profile load failed: %v", err)
		return
	}

	if profile == nil {
		if s.isRegistering() {
			return
		}
		user := s.CurrentUser()
		if user == nil {
			return
		}
		profile = &domain.Profile{
			UID:         uid,
			DisplayName: domain.DefaultDisplayName(user.DisplayName, user.Email),
			Email:       user.Email,
			CreatedAt:   time.Now(),
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			s.logger.Printf("lazy profile create failed: %v", err)
			return
		}
	}

	s.setProfile(profile)
	s.cacheProfile(ctx, profile)
}

func (s *Session) setCredential(cred *domain.Credential, profile *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := cred.User
	s.user = &u
	s.cred = cred
	if profile != nil {
		s.profile = profile
	}
}

func (s *Session) setRegistering(v bool) {
	s.mu.Lock()
	s.registering = v
	s.mu.Unlock()
}

func (s *Session) isRegistering() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registering
}

func (s *Session) setProfile(p *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

func (s *Session) cacheProfile(ctx context.Context, p *domain.Profile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.Printf("profile cache write failed: %v", err)
	}
}

func (s *Session) invalidateProfile(ctx context.Context, uid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, uid); err != nil {
		s.logger.Printf("profile cache invalidate failed: %v", err)
	}
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Session) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Profile returns the loaded profile document, or nil.
func (s *Session) Profile() *domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// UID returns the signed-in user's identifier, or "".
func (s *Session) UID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.UID
}

func (s *Session) IsAuthenticated() bool {
	return s.UID() != ""
}

// Loading reports whether the first state notification has resolved.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// UserName resolves the display name shown to the user: profile name,
// then provider name, then the email's local part.
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile != nil && s.profile.DisplayName != "" {
		return s.profile.DisplayName
	}
	if s.user != nil {
		return domain.DefaultDisplayName(s.user.DisplayName, s.user.Email)
	}
	return ""
}
