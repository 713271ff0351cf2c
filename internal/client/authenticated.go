package client

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/tenxcards/tenxcards-go/internal/events"
	"github.com/tenxcards/tenxcards-go/internal/metrics"
	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/store"
)

const noAccessTokenMessage = "No access token available"

// TokenStore is the part of store.TokenStore the wrapper needs.
type TokenStore interface {
	Get(ctx context.Context, kind store.Kind) (string, bool)
	Set(ctx context.Context, accessToken, refreshToken string)
	Clear(ctx context.Context)
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.RefreshResponse, error)
}

// AuthenticatedClient attaches the stored access token to every call and,
// on a 401, refreshes the pair once and retries once. A rejected refresh
// clears the store and publishes events.TopicTokenRefreshFailed.
type AuthenticatedClient struct {
	http    Doer
	auth    Refresher
	tokens  TokenStore
	bus     events.Publisher
	metrics *metrics.Registry
	log     *slog.Logger

	// Callers holding the same refresh token share one refresh call.
	refreshes singleflight.Group
}

func NewAuthenticatedClient(doer Doer, auth Refresher, tokens TokenStore, bus events.Publisher, m *metrics.Registry, log *slog.Logger) *AuthenticatedClient {
	if log == nil {
		log = slog.Default()
	}
	return &AuthenticatedClient{
		http:    doer,
		auth:    auth,
		tokens:  tokens,
		bus:     bus,
		metrics: m,
		log:     log,
	}
}

func (c *AuthenticatedClient) Do(ctx context.Context, req Request, out any) error {
	accessToken, ok := c.tokens.Get(ctx, store.KindAccess)
	if !ok {
		return &APIError{StatusCode: http.StatusUnauthorized, Message: noAccessTokenMessage}
	}

	err := c.attempt(ctx, req, accessToken, out)
	if err == nil || !IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	refreshToken, ok := c.tokens.Get(ctx, store.KindRefresh)
	if !ok {
		return err
	}

	pair, err := c.refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	return c.attempt(ctx, req, pair.AccessToken, out)
}

func (c *AuthenticatedClient) attempt(ctx context.Context, req Request, accessToken string, out any) error {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", "Bearer "+accessToken)
	req.Header = header
	return c.http.Do(ctx, req, out)
}

// refresh runs detached from the caller's cancellation so that a shared
// refresh is not lost when the caller that started it gives up.
func (c *AuthenticatedClient) refresh(ctx context.Context, refreshToken string) (*model.RefreshResponse, error) {
	v, err, shared := c.refreshes.Do(refreshToken, func() (any, error) {
		detached := context.WithoutCancel(ctx)

		resp, err := c.auth.Refresh(detached, refreshToken)
		if err != nil {
			c.log.Warn("token refresh failed, ending session", "error", err)
			c.metrics.TokenRefresh("failure")
			c.tokens.Clear(detached)
			c.metrics.SessionEnded()
			if c.bus != nil {
				c.bus.Publish(events.TopicTokenRefreshFailed)
			}
			return nil, err
		}

		c.metrics.TokenRefresh("success")
		c.tokens.Set(detached, resp.AccessToken, resp.RefreshToken)
		return resp, nil
	})
	if shared {
		c.log.Debug("joined in-flight token refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.RefreshResponse), nil
}
