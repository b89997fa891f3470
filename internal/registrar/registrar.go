// Package registrar obtains the device push token and registers it
// with the backend. Registration is best-effort: it never blocks
// login or app startup.
package registrar

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/notify"
	"github.com/medtrack/medtrack/internal/session"
)

// SentinelToken is returned on push-incapable runtimes, where no real
// token can be provisioned and backend registration is skipped.
const SentinelToken = "simulator-token"

// TokenProvider provisions the platform push token. The first call
// may suspend while the platform mints one.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Registration is the process-wide push token state, re-derived on
// each app start and after login. The backend's stored token is the
// source of truth; nothing here persists past the process.
type Registration struct {
	Token            string
	LastRegisteredAt time.Time
	Authenticated    bool
}

// Registrar registers the device push token with the backend.
type Registrar struct {
	provider TokenProvider
	backend  *backend.Client
	platform notify.Platform
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	state Registration
	// retryAfterLogin is set when the backend answered 401: the token
	// is fine, the session was not, so the next authenticated call
	// should try again.
	retryAfterLogin bool
}

// New creates a registrar.
func New(provider TokenProvider, client *backend.Client, platform notify.Platform, logger *zap.Logger) *Registrar {
	return &Registrar{
		provider: provider,
		backend:  client,
		platform: platform,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureRegistered obtains the push token and, when authenticated,
// registers it with the backend. Backend failures are logged and
// swallowed; the token is still returned. A 401 is "retry after
// login", not fatal. On a push-incapable runtime the sentinel token
// comes back and the backend is never called.
func (r *Registrar) EnsureRegistered(ctx context.Context, creds session.Credentials, authenticated bool) (string, error) {
	if !r.platform.PushCapable() {
		r.mu.Lock()
		r.state.Token = SentinelToken
		r.state.Authenticated = authenticated
		r.mu.Unlock()
		r.logger.Debug("Push-incapable runtime, skipping token registration")
		return SentinelToken, nil
	}

	r.mu.Lock()
	token := r.state.Token
	r.mu.Unlock()

	if token == "" {
		provisioned, err := r.provider.Token(ctx)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrRegistration.Code, "provisioning push token")
		}
		token = provisioned
		r.mu.Lock()
		r.state.Token = token
		r.mu.Unlock()
	}

	if !authenticated {
		return token, nil
	}

	if err := r.backend.RegisterPushToken(ctx, creds, token); err != nil {
		r.mu.Lock()
		r.state.Authenticated = true
		r.retryAfterLogin = stderrors.Is(err, errors.ErrUnauthorized)
		r.mu.Unlock()
		r.logger.Warn("Push token registration failed, continuing without it",
			zap.Bool("retry_after_login", stderrors.Is(err, errors.ErrUnauthorized)),
			zap.Error(err),
		)
		return token, nil
	}

	r.mu.Lock()
	r.state.Authenticated = true
	r.state.LastRegisteredAt = r.now()
	r.retryAfterLogin = false
	r.mu.Unlock()
	r.logger.Info("Push token registered")
	return token, nil
}

// Registration returns the current process-wide token state.
func (r *Registrar) Registration() Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PendingLoginRetry reports whether the last registration attempt hit
// a 401 and should be retried once a session exists.
func (r *Registrar) PendingLoginRetry() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryAfterLogin
}
