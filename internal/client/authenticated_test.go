package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tenxcards/tenxcards-go/internal/events"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/metrics"
	"github.com/tenxcards/tenxcards-go/internal/store"
)

// fakeBackend answers /api/resource according to the bearer token and
// /api/auth/refresh according to refreshStatus.
type fakeBackend struct {
	mu            sync.Mutex
	validToken    string
	resourceCode  map[string]int
	refreshStatus int
	refreshDelay  time.Duration

	refreshCalls  atomic.Int32
	resourceCalls atomic.Int32
	unauthorized  atomic.Int32
	lastBearer    []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/auth/refresh":
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		if f.refreshStatus != http.StatusOK {
			w.WriteHeader(f.refreshStatus)
			_, _ = w.Write([]byte(`{"status":401,"message":"Invalid refresh token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "AT2", "refreshToken": "RT2"})
	case "/api/resource":
		f.resourceCalls.Add(1)
		token := r.Header.Get("Authorization")
		f.mu.Lock()
		f.lastBearer = append(f.lastBearer, token)
		f.mu.Unlock()

		if code, ok := f.resourceCode[token]; ok {
			if code == http.StatusUnauthorized {
				f.unauthorized.Add(1)
			}
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"message":"denied"}`))
			return
		}
		if token != "Bearer "+f.validToken {
			f.unauthorized.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type authHarness struct {
	backend *fakeBackend
	tokens  *store.TokenStore
	bus     *events.Bus
	metrics *metrics.Registry
	client  *AuthenticatedClient
	ended   *atomic.Int32
}

func newAuthHarness(t *testing.T, backend *fakeBackend) *authHarness {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	reg := metrics.NewRegistry()
	httpClient := NewHTTPClient(srv.URL+"/api", WithLogger(logging.Discard()), WithMetrics(reg))
	tokens := store.NewTokenStore(store.NewMemoryBackend(), "", logging.Discard())
	bus := events.NewBus()

	ended := &atomic.Int32{}
	bus.Subscribe(events.TopicTokenRefreshFailed, func() { ended.Add(1) })

	return &authHarness{
		backend: backend,
		tokens:  tokens,
		bus:     bus,
		metrics: reg,
		client:  NewAuthenticatedClient(httpClient, NewAuthClient(httpClient), tokens, bus, reg, logging.Discard()),
		ended:   ended,
	}
}

type resource struct {
	Value string `json:"value"`
}

func TestAuthenticatedClient_NoAccessToken(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "AT1", refreshStatus: http.StatusOK})

	var out resource
	err := h.client.Do(context.Background(), Request{Path: "/resource"}, &out)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "No access token available", apiErr.Message)
	require.Nil(t, apiErr.Payload)
	require.Zero(t, h.backend.resourceCalls.Load())
}

func TestAuthenticatedClient_AttachesBearer(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "AT1", refreshStatus: http.StatusOK})
	h.tokens.Set(context.Background(), "AT1", "RT1")

	var out resource
	require.NoError(t, h.client.Do(context.Background(), Request{Path: "/resource"}, &out))
	require.Equal(t, "ok", out.Value)
	require.Equal(t, []string{"Bearer AT1"}, h.backend.lastBearer)
	require.Zero(t, h.backend.refreshCalls.Load())
}

func TestAuthenticatedClient_RefreshesOnceAndRetries(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "AT2", refreshStatus: http.StatusOK})
	ctx := context.Background()
	h.tokens.Set(ctx, "AT1", "RT1")

	var out resource
	require.NoError(t, h.client.Do(ctx, Request{Path: "/resource"}, &out))
	require.Equal(t, "ok", out.Value)

	require.Equal(t, int32(1), h.backend.refreshCalls.Load())
	require.Equal(t, []string{"Bearer AT1", "Bearer AT2"}, h.backend.lastBearer)

	access, _ := h.tokens.Get(ctx, store.KindAccess)
	refresh, _ := h.tokens.Get(ctx, store.KindRefresh)
	require.Equal(t, "AT2", access)
	require.Equal(t, "RT2", refresh)
	require.Zero(t, h.ended.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TokenRefreshesTotal.WithLabelValues("success")))
}

func TestAuthenticatedClient_NoRetryOnForbidden(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{
		validToken:    "AT1",
		refreshStatus: http.StatusOK,
		resourceCode:  map[string]int{"Bearer AT1": http.StatusForbidden},
	})
	h.tokens.Set(context.Background(), "AT1", "RT1")

	err := h.client.Do(context.Background(), Request{Path: "/resource"}, nil)
	require.True(t, IsStatus(err, http.StatusForbidden))
	require.Zero(t, h.backend.refreshCalls.Load())
	require.Equal(t, int32(1), h.backend.resourceCalls.Load())
}

func TestAuthenticatedClient_RefreshFailureEndsSession(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "AT2", refreshStatus: http.StatusUnauthorized})
	ctx := context.Background()
	h.tokens.Set(ctx, "AT1", "RT1")

	err := h.client.Do(ctx, Request{Path: "/resource"}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "Invalid refresh token", apiErr.Message)

	require.False(t, h.tokens.HasBoth(ctx))
	_, ok = h.tokens.Get(ctx, store.KindAccess)
	require.False(t, ok)
	require.Equal(t, int32(1), h.ended.Load())
	require.Equal(t, int32(1), h.backend.resourceCalls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SessionEndedTotal))
}

func TestAuthenticatedClient_NoRefreshToken(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "AT2", refreshStatus: http.StatusOK})
	ctx := context.Background()

	backend := store.NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, "10xcards_access_token", "AT1"))
	h.client.tokens = store.NewTokenStore(backend, "", logging.Discard())

	err := h.client.Do(ctx, Request{Path: "/resource"}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "expired", apiErr.Message)
	require.Zero(t, h.backend.refreshCalls.Load())
	require.Zero(t, h.ended.Load())
}

func TestAuthenticatedClient_RetryOutcomeIsFinal(t *testing.T) {
	h := newAuthHarness(t, &fakeBackend{validToken: "never", refreshStatus: http.StatusOK})
	ctx := context.Background()
	h.tokens.Set(ctx, "AT1", "RT1")

	err := h.client.Do(ctx, Request{Path: "/resource"}, nil)
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	require.Equal(t, int32(1), h.backend.refreshCalls.Load())
	require.Equal(t, int32(2), h.backend.resourceCalls.Load())
	require.Zero(t, h.ended.Load())
	require.True(t, h.tokens.HasBoth(ctx))
}

func TestAuthenticatedClient_AbortSkipsRefresh(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			t.Errorf("refresh must not be called after an abort")
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	httpClient := NewHTTPClient(srv.URL+"/api", WithLogger(logging.Discard()))
	tokens := store.NewTokenStore(store.NewMemoryBackend(), "", logging.Discard())
	tokens.Set(context.Background(), "AT1", "RT1")
	c := NewAuthenticatedClient(httpClient, NewAuthClient(httpClient), tokens, events.NewBus(), nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := c.Do(ctx, Request{Path: "/resource"}, nil)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, tokens.HasBoth(context.Background()))
}

func TestAuthenticatedClient_ConcurrentUnauthorizedShareRefresh(t *testing.T) {
	const callers = 5
	backend := &fakeBackend{validToken: "AT2", refreshStatus: http.StatusOK, refreshDelay: 300 * time.Millisecond}
	h := newAuthHarness(t, backend)
	ctx := context.Background()
	h.tokens.Set(ctx, "AT1", "RT1")

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out resource
			errs <- h.client.Do(ctx, Request{Path: "/resource"}, &out)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), backend.refreshCalls.Load())
	require.Equal(t, int32(callers*2), backend.resourceCalls.Load())
}

func TestAuthenticatedClient_ConcurrentRefreshFailurePublishesOnce(t *testing.T) {
	const callers = 4
	backend := &fakeBackend{validToken: "AT2", refreshStatus: http.StatusUnauthorized, refreshDelay: 300 * time.Millisecond}
	h := newAuthHarness(t, backend)
	ctx := context.Background()
	h.tokens.Set(ctx, "AT1", "RT1")

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.client.Do(ctx, Request{Path: "/resource"}, nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.True(t, IsStatus(err, http.StatusUnauthorized))
	}

	require.Equal(t, int32(1), backend.refreshCalls.Load())
	require.Equal(t, int32(1), h.ended.Load())
	require.False(t, h.tokens.HasBoth(ctx))
}
