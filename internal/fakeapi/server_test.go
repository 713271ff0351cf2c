package fakeapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/events"
	"github.com/tenxcards/tenxcards-go/internal/fakeapi"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/service"
	"github.com/tenxcards/tenxcards-go/internal/store"
)

type stack struct {
	api     *fakeapi.Server
	tokens  *store.TokenStore
	auth    *client.AuthClient
	authed  *client.AuthenticatedClient
	session *service.SessionService
	decks   *client.DecksAPI
	cards   *client.FlashcardsAPI
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := fakeapi.New(fakeapi.Options{Secret: "test-secret", Logger: logging.Discard()})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	httpClient := client.NewHTTPClient(srv.URL+"/api", client.WithLogger(logging.Discard()))
	tokens := store.NewTokenStore(store.NewMemoryBackend(), "", logging.Discard())
	bus := events.NewBus()
	auth := client.NewAuthClient(httpClient)
	authed := client.NewAuthenticatedClient(httpClient, auth, tokens, bus, nil, logging.Discard())
	session := service.NewSessionService(auth, authed, tokens, bus, nil, logging.Discard())
	t.Cleanup(session.Close)

	return &stack{
		api:     api,
		tokens:  tokens,
		auth:    auth,
		authed:  authed,
		session: session,
		decks:   client.NewDecksAPI(authed),
		cards:   client.NewFlashcardsAPI(authed),
	}
}

func (s *stack) register(t *testing.T, email, password string) {
	t.Helper()
	s.session.Restore(context.Background())
	require.NoError(t, s.session.Register(context.Background(), model.RegisterRequest{Email: email, Password: password}))
}

func TestLoginStoresTokensAndAuthenticates(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.auth.Register(ctx, model.RegisterRequest{Email: "a@b.com", Password: "X1!aaaaa"})
	require.NoError(t, err)

	s.session.Restore(ctx)
	require.False(t, s.session.IsAuthenticated())

	require.NoError(t, s.session.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "X1!aaaaa"}))
	require.True(t, s.session.IsAuthenticated())

	state := s.session.State()
	require.Equal(t, "a@b.com", state.User.Email)
	require.Equal(t, 100, state.User.MonthlyAILimit)
	access, _ := s.tokens.Get(ctx, store.KindAccess)
	refresh, _ := s.tokens.Get(ctx, store.KindRefresh)
	require.Equal(t, state.Tokens.AccessToken, access)
	require.Equal(t, state.Tokens.RefreshToken, refresh)

	_, ok := state.Tokens.AccessExpiry()
	require.True(t, ok)
}

func TestLoginWithWrongPassword(t *testing.T) {
	s := newStack(t)
	s.register(t, "a@b.com", "X1!aaaaa")
	s.session.Logout(context.Background())

	err := s.session.Login(context.Background(), model.LoginRequest{Email: "a@b.com", Password: "X1!bbbbb"})
	apiErr, ok := client.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newStack(t)
	s.register(t, "a@b.com", "X1!aaaaa")

	_, err := s.auth.Register(context.Background(), model.RegisterRequest{Email: "A@B.com", Password: "X1!aaaaa"})
	require.True(t, client.IsStatus(err, http.StatusConflict))
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")

	deck, err := s.decks.Create(ctx, model.CreateDeckRequest{Name: "Spanish"})
	require.NoError(t, err)
	oldRefresh, _ := s.tokens.Get(ctx, store.KindRefresh)

	s.api.ExpireAccessTokens()

	got, err := s.decks.Get(ctx, deck.ID)
	require.NoError(t, err)
	require.Equal(t, "Spanish", got.Name)
	require.Equal(t, 1, s.api.RefreshCalls())

	newRefresh, _ := s.tokens.Get(ctx, store.KindRefresh)
	require.NotEqual(t, oldRefresh, newRefresh)

	_, err = s.auth.Refresh(ctx, oldRefresh)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
}

func TestRevokedRefreshTokenEndsSession(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")

	s.api.ExpireAccessTokens()
	s.api.RevokeRefreshTokens()

	_, err := s.decks.List(ctx, model.PageParams{})
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.False(t, s.session.IsAuthenticated())
	require.False(t, s.tokens.HasBoth(ctx))
}

func TestRestoreAfterRestart(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")

	restarted := service.NewSessionService(s.auth, s.authed, s.tokens, events.NewBus(), nil, logging.Discard())
	defer restarted.Close()
	require.True(t, restarted.State().IsLoading)

	restarted.Restore(ctx)
	require.True(t, restarted.IsAuthenticated())
	require.Equal(t, "a@b.com", restarted.State().User.Email)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")
	access, _ := s.tokens.Get(ctx, store.KindAccess)

	s.session.Logout(ctx)
	require.False(t, s.session.IsAuthenticated())

	_, err := s.auth.Me(ctx, access)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
}

func TestLogoutAfterRefreshRevokesCurrentAccessToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")

	s.api.ExpireAccessTokens()
	_, err := s.decks.List(ctx, model.PageParams{})
	require.NoError(t, err)
	require.Equal(t, 1, s.api.RefreshCalls())

	current, _ := s.tokens.Get(ctx, store.KindAccess)
	require.NotEqual(t, s.session.State().Tokens.AccessToken, current)

	s.session.Logout(ctx)
	require.False(t, s.session.IsAuthenticated())

	_, err = s.auth.Me(ctx, current)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
}

func TestPasswordResetFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")
	s.session.Logout(ctx)

	msg, err := s.session.RequestPasswordReset(ctx, model.PasswordResetRequest{Email: "a@b.com"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.Message)

	token := s.api.ResetToken("a@b.com")
	require.NotEmpty(t, token)

	_, err = s.session.ConfirmPasswordReset(ctx, model.PasswordResetConfirm{Token: token, NewPassword: "Y2@bbbbb"})
	require.NoError(t, err)

	require.NoError(t, s.session.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "Y2@bbbbb"}))

	_, err = s.session.ConfirmPasswordReset(ctx, model.PasswordResetConfirm{Token: token, NewPassword: "Z3#ccccc"})
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
}

func TestDecksAndFlashcards(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.register(t, "a@b.com", "X1!aaaaa")

	deck, err := s.decks.Create(ctx, model.CreateDeckRequest{Name: "Spanish"})
	require.NoError(t, err)

	_, err = s.decks.Create(ctx, model.CreateDeckRequest{Name: "spanish"})
	require.True(t, client.IsStatus(err, http.StatusConflict))

	for _, front := range []string{"hola", "adios"} {
		_, err := s.cards.Create(ctx, deck.ID, model.CreateFlashcardRequest{Front: front, Back: "x"})
		require.NoError(t, err)
	}

	page, err := s.decks.List(ctx, model.PageParams{})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Equal(t, 2, page.Content[0].FlashcardCount)

	cards, err := s.cards.ListInDeck(ctx, deck.ID, model.FlashcardListParams{Source: model.SourceAI})
	require.NoError(t, err)
	require.Empty(t, cards.Content)

	session, err := s.decks.StudySession(ctx, deck.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, session.TotalCards)
	require.Equal(t, "hola", session.Flashcards[0].Front)

	require.NoError(t, s.decks.Delete(ctx, deck.ID))
	_, err = s.decks.Get(ctx, deck.ID)
	require.True(t, client.IsStatus(err, http.StatusNotFound))
}

func TestServerSideValidationMessage(t *testing.T) {
	s := newStack(t)
	s.register(t, "a@b.com", "X1!aaaaa")

	err := s.authed.Do(context.Background(), client.Request{
		Method: http.MethodPost,
		Path:   "/decks",
		Body:   map[string]string{"name": ""},
	}, nil)
	require.Equal(t, map[string]string{"name": "must be at least 1 characters"}, client.FieldErrors(err))
}
