// Package store persists the access/refresh token pair.
//
// TokenStore never reports backend faults to its callers: a failed read is an
// absent value and a failed write is logged and dropped.
package store

import (
	"context"
	"errors"
	"log/slog"
)

var ErrNotFound = errors.New("store: key not found")

const DefaultPrefix = "10xcards"

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Backend is a durable string key-value store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type TokenStore struct {
	backend    Backend
	log        *slog.Logger
	accessKey  string
	refreshKey string
}

func NewTokenStore(backend Backend, prefix string, log *slog.Logger) *TokenStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &TokenStore{
		backend:    backend,
		log:        log,
		accessKey:  prefix + "_access_token",
		refreshKey: prefix + "_refresh_token",
	}
}

func (s *TokenStore) key(kind Kind) string {
	if kind == KindRefresh {
		return s.refreshKey
	}
	return s.accessKey
}

// Get returns the stored token of the given kind, or false when it is
// missing, empty or unreadable.
func (s *TokenStore) Get(ctx context.Context, kind Kind) (string, bool) {
	value, err := s.backend.Get(ctx, s.key(kind))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("failed to read token", "kind", string(kind), "error", err)
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}

func (s *TokenStore) Set(ctx context.Context, accessToken, refreshToken string) {
	if err := s.backend.Set(ctx, s.accessKey, accessToken); err != nil {
		s.log.Error("failed to save tokens", "error", err)
		return
	}
	if err := s.backend.Set(ctx, s.refreshKey, refreshToken); err != nil {
		s.log.Error("failed to save tokens", "error", err)
	}
}

func (s *TokenStore) Clear(ctx context.Context) {
	if err := s.backend.Delete(ctx, s.accessKey, s.refreshKey); err != nil {
		s.log.Error("failed to clear tokens", "error", err)
	}
}

func (s *TokenStore) HasBoth(ctx context.Context) bool {
	_, okAccess := s.Get(ctx, KindAccess)
	_, okRefresh := s.Get(ctx, KindRefresh)
	return okAccess && okRefresh
}
