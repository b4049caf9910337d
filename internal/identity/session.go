package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Authenticator exchanges account credentials for an access token.
type Authenticator interface {
	SignIn(ctx context.Context, username, password string) (*api.SignInResponse, error)
}

// Session is a Provider backed by a server account. The access token is
// held in memory; its expiry is read from the (unverified) JWT claims so
// the session can end itself when the token runs out.
type Session struct {
	auth   Authenticator
	logger logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	userID   string
	username string
	token    string
	expires  time.Time
	timer    *time.Timer

	hub hub
}

func NewSession(auth Authenticator, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Session{auth: auth, logger: logger.With("module", "session"), now: time.Now}
}

// SignIn authenticates and starts a session. An existing session for a
// different user is ended first so watchers see the switch.
func (s *Session) SignIn(ctx context.Context, username, password string) error {
	resp, err := s.auth.SignIn(ctx, username, password)
	if err != nil {
		return err
	}
	return s.Restore(ctx, resp.AccessToken)
}

// Restore starts a session from a previously issued token.
func (s *Session) Restore(ctx context.Context, token string) error {
	claims, err := parseClaims(token)
	if err != nil {
		return err
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
		if !expires.After(s.now()) {
			return common.ErrTokenExpired
		}
	}

	s.mu.Lock()
	prev := s.userID
	s.stopTimerLocked()
	s.userID = claims.Subject
	s.username = claims.Username
	s.token = token
	s.expires = expires
	if !expires.IsZero() {
		s.timer = time.AfterFunc(expires.Sub(s.now()), func() { s.expire(token) })
	}
	s.mu.Unlock()

	if prev != "" && prev != claims.Subject {
		s.hub.publish(Event{Kind: SignedOut})
	}
	s.hub.publish(Event{Kind: SignedIn, UserID: claims.Subject})
	s.logger.Info(ctx, "signed in", "username", claims.Username, "expires_at", expires)
	return nil
}

// SignOut ends the session. Calling it without a session is a no-op.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	had := s.userID != ""
	s.clearLocked()
	s.mu.Unlock()

	if had {
		s.hub.publish(Event{Kind: SignedOut})
		s.logger.Info(ctx, "signed out")
	}
}

func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", false
	}
	if !s.expires.IsZero() && !s.expires.After(s.now()) {
		return "", false
	}
	return s.userID, true
}

func (s *Session) Subscribe() (<-chan Event, func()) { return s.hub.subscribe() }

// Token returns the current access token, or common.ErrUnauthorized when
// there is no live session.
func (s *Session) Token() (string, error) {
	if _, ok := s.Current(); !ok {
		return "", common.ErrUnauthorized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Username of the signed-in account.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) expire(token string) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
	s.mu.Unlock()

	s.hub.publish(Event{Kind: SignedOut})
	s.logger.Info(context.Background(), "session expired")
}

func (s *Session) clearLocked() {
	s.stopTimerLocked()
	s.userID = ""
	s.username = ""
	s.token = ""
	s.expires = time.Time{}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// parseClaims reads the token payload without checking the signature. The
// server verifies tokens; the client only needs the subject and expiry.
func parseClaims(token string) (*api.TokenClaims, error) {
	claims := &api.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", common.ErrInvalidToken)
	}
	return claims, nil
}

var _ Provider = (*Session)(nil)
var _ Provider = (*Static)(nil)
