// Package fakeapi is an in-memory stand-in for the 10xCards REST API. It
// serves the auth endpoints with real JWT access tokens and rotating refresh
// tokens, plus decks and flashcards, so the client can be exercised without
// the Java backend.
package fakeapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

const (
	authUserKey = "auth_user"

	defaultDeckPageSize      = 100
	defaultFlashcardPageSize = 50
	maxPageSize              = 100
)

type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     *slog.Logger
}

type Server struct {
	auth   *authService
	decks  *deckStore
	log    *slog.Logger
	router *gin.Engine
}

func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = uuid.NewString()
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		auth:  newAuthService([]byte(opts.Secret), opts.AccessTTL, opts.RefreshTTL),
		decks: newDeckStore(),
		log:   opts.Logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ExpireAccessTokens makes every access token issued so far answer 401.
func (s *Server) ExpireAccessTokens() {
	s.auth.expireAccessTokens()
}

// RevokeRefreshTokens makes every outstanding refresh token unusable.
func (s *Server) RevokeRefreshTokens() {
	s.auth.revokeRefreshTokens()
}

func (s *Server) RefreshCalls() int {
	s.auth.mu.Lock()
	defer s.auth.mu.Unlock()
	return s.auth.refreshCalls
}

// ResetToken returns the pending password reset token for email, the one a
// real backend would have mailed.
func (s *Server) ResetToken(email string) string {
	return s.auth.resetTokenFor(email)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "No endpoint "+c.Request.Method+" "+c.Request.URL.Path)
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.POST("/refresh", s.refresh)
		auth.POST("/password-reset/request", s.requestReset)
		auth.POST("/password-reset/confirm", s.confirmReset)
		auth.GET("/me", s.requireAuth, s.me)
		auth.POST("/logout", s.requireAuth, s.logout)

		decks := api.Group("/decks", s.requireAuth)
		decks.GET("", s.listDecks)
		decks.POST("", s.createDeck)
		decks.GET("/:id", s.getDeck)
		decks.PUT("/:id", s.updateDeck)
		decks.DELETE("/:id", s.deleteDeck)
		decks.GET("/:id/study", s.studySession)
		decks.GET("/:id/flashcards", s.listFlashcards)
		decks.POST("/:id/flashcards", s.createFlashcard)
	}
	return r
}

func (s *Server) register(c *gin.Context) {
	var req model.RegisterRequest
	if !bindValid(c, &req) {
		return
	}
	resp, err := s.auth.register(req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	s.log.Info("user registered", "user_id", resp.ID)
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) login(c *gin.Context) {
	var req model.LoginRequest
	if !bindValid(c, &req) {
		return
	}
	resp, err := s.auth.login(req.Email, req.Password, c.ClientIP())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "refreshToken: is required")
		return
	}
	resp, err := s.auth.refreshTokens(req.RefreshToken)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) me(c *gin.Context) {
	u := authUser(c)
	c.JSON(http.StatusOK, model.UserInfoResponse(u.identity()))
}

func (s *Server) logout(c *gin.Context) {
	_ = s.auth.logout(bearerToken(c))
	c.Status(http.StatusNoContent)
}

func (s *Server) requestReset(c *gin.Context) {
	var req model.PasswordResetRequest
	if !bindValid(c, &req) {
		return
	}
	s.auth.requestReset(req.Email)
	c.JSON(http.StatusOK, model.MessageResponse{Message: "If the email exists, a password reset link has been sent"})
}

func (s *Server) confirmReset(c *gin.Context) {
	var req model.PasswordResetConfirm
	if !bindValid(c, &req) {
		return
	}
	if err := s.auth.confirmReset(req.Token, req.NewPassword); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MessageResponse{Message: "Password has been reset successfully"})
}

func (s *Server) listDecks(c *gin.Context) {
	page, size, ok := pageParams(c, defaultDeckPageSize)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.decks.list(authUser(c).id, page, size))
}

func (s *Server) createDeck(c *gin.Context) {
	var req model.CreateDeckRequest
	if !bindValid(c, &req) {
		return
	}
	deck, err := s.decks.create(authUser(c).id, req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deck)
}

func (s *Server) getDeck(c *gin.Context) {
	deck, err := s.decks.get(authUser(c).id, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, deck)
}

func (s *Server) updateDeck(c *gin.Context) {
	var req model.UpdateDeckRequest
	if !bindValid(c, &req) {
		return
	}
	deck, err := s.decks.rename(authUser(c).id, c.Param("id"), req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, deck)
}

func (s *Server) deleteDeck(c *gin.Context) {
	if err := s.decks.remove(authUser(c).id, c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) studySession(c *gin.Context) {
	shuffle := c.DefaultQuery("shuffle", "true") != "false"
	session, err := s.decks.study(authUser(c).id, c.Param("id"), shuffle)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) listFlashcards(c *gin.Context) {
	page, size, ok := pageParams(c, defaultFlashcardPageSize)
	if !ok {
		return
	}
	params := model.FlashcardListParams{Source: model.FlashcardSource(c.Query("source"))}
	if err := validation.Struct(params); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := s.decks.listFlashcards(authUser(c).id, c.Param("id"), params.Source, page, size)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (s *Server) createFlashcard(c *gin.Context) {
	var req model.CreateFlashcardRequest
	if !bindValid(c, &req) {
		return
	}
	card, err := s.decks.addFlashcard(authUser(c).id, c.Param("id"), req.Front, req.Back)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (s *Server) requireAuth(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "Missing bearer token")
		c.Abort()
		return
	}
	u, err := s.auth.authenticate(token)
	if err != nil {
		writeServiceError(c, err)
		c.Abort()
		return
	}
	c.Set(authUserKey, u)
	c.Next()
}

func authUser(c *gin.Context) *user {
	if v, ok := c.Get(authUserKey); ok {
		if u, ok := v.(*user); ok {
			return u
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func bindValid(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "Malformed JSON request")
		return false
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pageParams(c *gin.Context, defaultSize int) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		writeError(c, http.StatusBadRequest, "page: must be at least 0")
		return 0, 0, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 || size > maxPageSize {
		writeError(c, http.StatusBadRequest, "size: must be between 1 and 100")
		return 0, 0, false
	}
	return page, size, true
}

func writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrGone):
		status = http.StatusGone
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && status != http.StatusInternalServerError {
		msg = msg[i+2:]
	}
	if status == http.StatusInternalServerError {
		msg = "An unexpected error occurred"
	}
	writeError(c, status, msg)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}
