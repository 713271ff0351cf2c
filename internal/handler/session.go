package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

// Session is the part of service.SessionService the gateway drives.
type Session interface {
	State() model.SessionState
	IsAuthenticated() bool
	Login(ctx context.Context, req model.LoginRequest) error
	Register(ctx context.Context, req model.RegisterRequest) error
	Logout(ctx context.Context)
	RequestPasswordReset(ctx context.Context, req model.PasswordResetRequest) (*model.MessageResponse, error)
	ConfirmPasswordReset(ctx context.Context, req model.PasswordResetConfirm) (*model.MessageResponse, error)
}

type SessionHandler struct {
	svc Session
}

func NewSessionHandler(svc Session) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse(h.svc.State()))
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Malformed JSON request")
		return
	}
	if err := h.svc.Login(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(h.svc.State()))
}

func (h *SessionHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Malformed JSON request")
		return
	}
	if err := h.svc.Register(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(h.svc.State()))
}

func (h *SessionHandler) Logout(c *gin.Context) {
	h.svc.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) RequestPasswordReset(c *gin.Context) {
	var req model.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Malformed JSON request")
		return
	}
	resp, err := h.svc.RequestPasswordReset(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) ConfirmPasswordReset(c *gin.Context) {
	var req model.PasswordResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Malformed JSON request")
		return
	}
	resp, err := h.svc.ConfirmPasswordReset(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func sessionResponse(state model.SessionState) model.SessionResponse {
	resp := model.SessionResponse{
		Authenticated: state.IsAuthenticated(),
		IsLoading:     state.IsLoading,
		User:          state.User,
	}
	if state.Tokens != nil {
		if exp, ok := state.Tokens.AccessExpiry(); ok {
			resp.AccessExpiry = &exp
		}
	}
	return resp
}

// writeError relays upstream API errors with their status and body. Local
// validation failures are 400; unreachable upstream is 502.
func writeError(c *gin.Context, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeBadRequest(c, verr.Error())
		return
	}

	if errors.Is(err, client.ErrAborted) {
		c.JSON(http.StatusGatewayTimeout, model.GatewayError{Error: "request aborted"})
		return
	}

	apiErr, ok := client.AsAPIError(err)
	if !ok || apiErr.StatusCode == 0 {
		logging.FromContext(c.Request.Context()).Warn("upstream request failed", "error", err)
		c.JSON(http.StatusBadGateway, model.GatewayError{Error: "upstream unavailable"})
		return
	}

	if len(apiErr.Body) > 0 {
		c.Data(apiErr.StatusCode, "application/json", apiErr.Body)
		return
	}
	c.JSON(apiErr.StatusCode, model.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    apiErr.StatusCode,
		Error:     http.StatusText(apiErr.StatusCode),
		Message:   apiErr.Message,
		Path:      c.Request.URL.Path,
	})
}

func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    http.StatusBadRequest,
		Error:     http.StatusText(http.StatusBadRequest),
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}
