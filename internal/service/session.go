package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/events"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/metrics"
	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/store"
)

const (
	StateAuthenticated = "authenticated"
	StateAnonymous     = "anonymous"
)

// AuthAPI is the unauthenticated side of /auth.
type AuthAPI interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error)
	Me(ctx context.Context, accessToken string) (*model.UserInfoResponse, error)
	Logout(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, req model.PasswordResetRequest) (*model.MessageResponse, error)
	ConfirmPasswordReset(ctx context.Context, req model.PasswordResetConfirm) (*model.MessageResponse, error)
}

type TokenStore interface {
	Get(ctx context.Context, kind store.Kind) (string, bool)
	Set(ctx context.Context, accessToken, refreshToken string)
	Clear(ctx context.Context)
	HasBoth(ctx context.Context) bool
}

// SessionService owns the signed-in user and the in-memory token pair.
// It starts loading; Restore settles it into authenticated or anonymous.
type SessionService struct {
	auth    AuthAPI
	authed  client.Doer
	tokens  TokenStore
	metrics *metrics.Registry
	log     *slog.Logger

	mu    sync.RWMutex
	state model.SessionState

	unsubscribe func()
}

// NewSessionService subscribes to events.TopicTokenRefreshFailed on bus.
// authed is the refreshing client used by ReloadUser.
func NewSessionService(auth AuthAPI, authed client.Doer, tokens TokenStore, bus events.Subscriber, m *metrics.Registry, log *slog.Logger) *SessionService {
	if log == nil {
		log = slog.Default()
	}
	s := &SessionService{
		auth:    auth,
		authed:  authed,
		tokens:  tokens,
		metrics: m,
		log:     log,
		state:   model.SessionState{IsLoading: true},
	}
	if bus != nil {
		s.unsubscribe = bus.Subscribe(events.TopicTokenRefreshFailed, s.forceLogout)
	}
	return s
}

func (s *SessionService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Restore validates stored tokens against GET /auth/me. Any failure leaves
// the session anonymous with the store cleared.
func (s *SessionService) Restore(ctx context.Context) {
	if !s.tokens.HasBoth(ctx) {
		s.setAnonymous("restore_empty")
		return
	}

	accessToken, _ := s.tokens.Get(ctx, store.KindAccess)
	refreshToken, _ := s.tokens.Get(ctx, store.KindRefresh)

	info, err := s.auth.Me(ctx, accessToken)
	if err != nil {
		s.log.Info("stored session rejected", "error", err)
		s.tokens.Clear(ctx)
		s.setAnonymous("restore_failed")
		return
	}

	user := info.User()
	s.setAuthenticated(&user, &model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, "restore")
}

func (s *SessionService) Login(ctx context.Context, req model.LoginRequest) error {
	resp, err := s.auth.Login(ctx, req)
	if err != nil {
		return err
	}
	s.establish(ctx, resp, "login")
	return nil
}

func (s *SessionService) Register(ctx context.Context, req model.RegisterRequest) error {
	resp, err := s.auth.Register(ctx, req)
	if err != nil {
		return err
	}
	s.establish(ctx, resp, "register")
	return nil
}

// Logout asks the server to revoke the access token, then forgets the
// session locally whatever the server said. The store wins over memory:
// background refreshes rotate only the stored pair.
func (s *SessionService) Logout(ctx context.Context) {
	accessToken, ok := s.tokens.Get(ctx, store.KindAccess)
	if !ok {
		s.mu.RLock()
		if s.state.Tokens != nil {
			accessToken = s.state.Tokens.AccessToken
		}
		s.mu.RUnlock()
	}

	if accessToken != "" {
		if err := s.auth.Logout(ctx, accessToken); err != nil {
			s.log.Warn("server logout failed", "error", err)
		}
	}

	s.tokens.Clear(ctx)
	s.setAnonymous("logout")
}

// ReloadUser re-reads the identity, for instance after AI usage changed.
func (s *SessionService) ReloadUser(ctx context.Context) error {
	var info model.UserInfoResponse
	if err := s.authed.Do(ctx, client.Request{Method: http.MethodGet, Path: "/auth/me"}, &info); err != nil {
		return err
	}

	accessToken, okAccess := s.tokens.Get(ctx, store.KindAccess)
	refreshToken, okRefresh := s.tokens.Get(ctx, store.KindRefresh)
	if !okAccess || !okRefresh {
		// The session ended while the call was in flight.
		return &client.APIError{StatusCode: http.StatusUnauthorized, Message: "Session ended"}
	}

	user := info.User()
	s.mu.Lock()
	s.state.User = &user
	s.state.Tokens = &model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}
	s.state.IsLoading = false
	s.mu.Unlock()
	return nil
}

func (s *SessionService) RequestPasswordReset(ctx context.Context, req model.PasswordResetRequest) (*model.MessageResponse, error) {
	return s.auth.RequestPasswordReset(ctx, req)
}

func (s *SessionService) ConfirmPasswordReset(ctx context.Context, req model.PasswordResetConfirm) (*model.MessageResponse, error) {
	return s.auth.ConfirmPasswordReset(ctx, req)
}

// State returns a copy; callers may keep it.
func (s *SessionService) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := model.SessionState{IsLoading: s.state.IsLoading}
	if s.state.User != nil {
		u := *s.state.User
		out.User = &u
	}
	if s.state.Tokens != nil {
		t := *s.state.Tokens
		out.Tokens = &t
	}
	return out
}

func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated()
}

func (s *SessionService) establish(ctx context.Context, resp *model.AuthResponse, cause string) {
	user := resp.User()
	tokens := resp.Tokens()
	s.tokens.Set(ctx, tokens.AccessToken, tokens.RefreshToken)
	s.setAuthenticated(&user, &tokens, cause)
}

// forceLogout runs on the publishing goroutine, so it must not call back
// into the network or take locks held across network calls.
func (s *SessionService) forceLogout() {
	s.tokens.Clear(context.Background())
	s.setAnonymous("refresh_failed")
}

func (s *SessionService) setAuthenticated(user *model.UserIdentity, tokens *model.TokenPair, cause string) {
	s.mu.Lock()
	s.state = model.SessionState{User: user, Tokens: tokens}
	s.mu.Unlock()

	s.metrics.SessionTransition(StateAuthenticated, cause)
	s.log.Info("session established", "cause", cause, "user", logging.RedactEmail(user.Email))
}

func (s *SessionService) setAnonymous(cause string) {
	s.mu.Lock()
	s.state = model.SessionState{}
	s.mu.Unlock()

	s.metrics.SessionTransition(StateAnonymous, cause)
	s.log.Info("session cleared", "cause", cause)
}
