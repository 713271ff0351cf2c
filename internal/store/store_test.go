package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenxcards/tenxcards-go/internal/logging"
)

type faultyBackend struct {
	getErr error
	setErr error
	delErr error
}

func (f *faultyBackend) Get(context.Context, string) (string, error) { return "", f.getErr }
func (f *faultyBackend) Set(context.Context, string, string) error   { return f.setErr }
func (f *faultyBackend) Delete(context.Context, ...string) error     { return f.delErr }

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   NewFileBackend(filepath.Join(t.TempDir(), "creds", "credentials.json")),
	}
}

func TestTokenStore_SetGetClear(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewTokenStore(backend, "", logging.Discard())

			s.Set(ctx, "a", "b")
			access, ok := s.Get(ctx, KindAccess)
			require.True(t, ok)
			require.Equal(t, "a", access)
			refresh, ok := s.Get(ctx, KindRefresh)
			require.True(t, ok)
			require.Equal(t, "b", refresh)

			s.Clear(ctx)
			_, ok = s.Get(ctx, KindAccess)
			require.False(t, ok)
			_, ok = s.Get(ctx, KindRefresh)
			require.False(t, ok)
		})
	}
}

func TestTokenStore_HasBoth(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTokenStore(backend, "", logging.Discard())

	require.False(t, s.HasBoth(ctx))

	require.NoError(t, backend.Set(ctx, "10xcards_access_token", "a"))
	require.False(t, s.HasBoth(ctx))

	require.NoError(t, backend.Delete(ctx, "10xcards_access_token"))
	require.NoError(t, backend.Set(ctx, "10xcards_refresh_token", "b"))
	require.False(t, s.HasBoth(ctx))

	require.NoError(t, backend.Set(ctx, "10xcards_access_token", "a"))
	require.True(t, s.HasBoth(ctx))
}

func TestTokenStore_EmptyValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTokenStore(backend, "", logging.Discard())

	require.NoError(t, backend.Set(ctx, "10xcards_access_token", ""))
	_, ok := s.Get(ctx, KindAccess)
	require.False(t, ok)
}

func TestTokenStore_CustomPrefix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTokenStore(backend, "work", logging.Discard())

	s.Set(ctx, "a", "b")

	v, err := backend.Get(ctx, "work_access_token")
	require.NoError(t, err)
	require.Equal(t, "a", v)
	v, err = backend.Get(ctx, "work_refresh_token")
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestTokenStore_BackendFaultsAreContained(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk unavailable")
	s := NewTokenStore(&faultyBackend{getErr: boom, setErr: boom, delErr: boom}, "", logging.Discard())

	require.NotPanics(t, func() {
		s.Set(ctx, "a", "b")
		s.Clear(ctx)
	})
	_, ok := s.Get(ctx, KindAccess)
	require.False(t, ok)
	require.False(t, s.HasBoth(ctx))
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	NewTokenStore(NewFileBackend(path), "", logging.Discard()).Set(ctx, "AT1", "RT1")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := NewTokenStore(NewFileBackend(path), "", logging.Discard())
	require.True(t, reopened.HasBoth(ctx))
	access, _ := reopened.Get(ctx, KindAccess)
	require.Equal(t, "AT1", access)

	reopened.Clear(ctx)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFileBackend_CorruptFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewTokenStore(NewFileBackend(path), "", logging.Discard())
	_, ok := s.Get(ctx, KindAccess)
	require.False(t, ok)

	_, err := NewFileBackend(path).Get(ctx, "10xcards_access_token")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestRedisBackend(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	backend, err := NewRedisBackend(ctx, redisURL)
	require.NoError(t, err)
	defer backend.Close()

	s := NewTokenStore(backend, "tenxcards_test", logging.Discard())
	s.Set(ctx, "a", "b")
	require.True(t, s.HasBoth(ctx))

	s.Clear(ctx)
	require.False(t, s.HasBoth(ctx))

	_, err = backend.Get(ctx, "tenxcards_test_access_token")
	require.ErrorIs(t, err, ErrNotFound)
}
