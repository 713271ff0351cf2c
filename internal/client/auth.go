package client

import (
	"context"
	"net/http"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

// AuthClient calls the /auth endpoints. None of them go through the
// refresh wrapper.
type AuthClient struct {
	http Doer
}

func NewAuthClient(doer Doer) *AuthClient {
	return &AuthClient{http: doer}
}

func (c *AuthClient) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var resp model.AuthResponse
	if err := c.http.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/login", Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AuthClient) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var resp model.AuthResponse
	if err := c.http.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/register", Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*model.RefreshResponse, error) {
	var resp model.RefreshResponse
	req := Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   model.RefreshRequest{RefreshToken: refreshToken},
	}
	if err := c.http.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the identity behind accessToken.
func (c *AuthClient) Me(ctx context.Context, accessToken string) (*model.UserInfoResponse, error) {
	var resp model.UserInfoResponse
	req := Request{
		Method: http.MethodGet,
		Path:   "/auth/me",
		Header: bearer(accessToken),
	}
	if err := c.http.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes accessToken on the server. The server answers 204.
func (c *AuthClient) Logout(ctx context.Context, accessToken string) error {
	return c.http.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/logout",
		Header: bearer(accessToken),
	}, nil)
}

func (c *AuthClient) RequestPasswordReset(ctx context.Context, req model.PasswordResetRequest) (*model.MessageResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var resp model.MessageResponse
	if err := c.http.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/password-reset/request", Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AuthClient) ConfirmPasswordReset(ctx context.Context, req model.PasswordResetConfirm) (*model.MessageResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var resp model.MessageResponse
	if err := c.http.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/password-reset/confirm", Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
