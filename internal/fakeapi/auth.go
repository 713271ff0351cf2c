package fakeapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tenxcards/tenxcards-go/internal/model"
)

const (
	defaultAILimit  = 100
	loginAttempts   = 5
	loginWindow     = 15 * time.Minute
	resetTokenTTL   = time.Hour
	defaultRole     = "USER"
	tokenTypeAccess = "access"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrGone         = errors.New("gone")
	ErrRateLimited  = errors.New("rate limited")
)

type user struct {
	id           string
	email        string
	passwordHash []byte
	role         string
	aiLimit      int
	aiUsage      int
}

func (u *user) identity() model.UserIdentity {
	return model.UserIdentity{
		ID:                    u.id,
		Email:                 u.email,
		Role:                  u.role,
		MonthlyAILimit:        u.aiLimit,
		AIUsageInCurrentMonth: u.aiUsage,
	}
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type resetRecord struct {
	userID    string
	expiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// authService keeps users and tokens in memory. Refresh tokens are opaque,
// stored hashed and rotated on every use.
type authService struct {
	mu         sync.Mutex
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	users        map[string]*user // by id
	emails       map[string]string
	refresh      map[string]*refreshRecord // by token hash
	revokedJTI   map[string]struct{}
	resets       map[string]*resetRecord // by token
	loginsByAddr map[string][]time.Time
	notBefore    time.Time

	refreshCalls int
}

func newAuthService(secret []byte, accessTTL, refreshTTL time.Duration) *authService {
	return &authService{
		secret:       secret,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		now:          time.Now,
		users:        make(map[string]*user),
		emails:       make(map[string]string),
		refresh:      make(map[string]*refreshRecord),
		revokedJTI:   make(map[string]struct{}),
		resets:       make(map[string]*resetRecord),
		loginsByAddr: make(map[string][]time.Time),
	}
}

func (s *authService) register(email, password string) (*model.AuthResponse, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[email]; ok {
		return nil, fmt.Errorf("%w: user with email %s already exists", ErrConflict, email)
	}

	u := &user{
		id:           uuid.NewString(),
		email:        email,
		passwordHash: hash,
		role:         defaultRole,
		aiLimit:      defaultAILimit,
	}
	s.users[u.id] = u
	s.emails[email] = u.id

	return s.issueLocked(u)
}

func (s *authService) login(email, password, remoteAddr string) (*model.AuthResponse, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.consumeLoginLocked(remoteAddr) {
		return nil, fmt.Errorf("%w: Too many login attempts. Please try again in 15 minutes", ErrRateLimited)
	}

	id, ok := s.emails[email]
	if !ok {
		return nil, fmt.Errorf("%w: Invalid email or password", ErrUnauthorized)
	}
	u := s.users[id]
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: Invalid email or password", ErrUnauthorized)
	}

	return s.issueLocked(u)
}

func (s *authService) refreshTokens(token string) (*model.RefreshResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCalls++

	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: Invalid token", ErrUnauthorized)
	}
	record, ok := s.refresh[hashToken(token)]
	if !ok {
		return nil, fmt.Errorf("%w: Invalid token", ErrUnauthorized)
	}
	if record.revoked {
		return nil, fmt.Errorf("%w: Token has been revoked", ErrUnauthorized)
	}
	if s.now().After(record.expiresAt) {
		return nil, fmt.Errorf("%w: Token has expired", ErrUnauthorized)
	}
	u, ok := s.users[record.userID]
	if !ok {
		return nil, fmt.Errorf("%w: Invalid token", ErrUnauthorized)
	}

	record.revoked = true

	resp, err := s.issueLocked(u)
	if err != nil {
		return nil, err
	}
	return &model.RefreshResponse{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

func (s *authService) logout(accessToken string) error {
	claims, err := s.parse(accessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedJTI[claims.ID] = struct{}{}
	return nil
}

// authenticate resolves a bearer token to its user.
func (s *authService) authenticate(accessToken string) (*user, error) {
	claims, err := s.parse(accessToken)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, revoked := s.revokedJTI[claims.ID]; revoked {
		return nil, fmt.Errorf("%w: Token has been revoked", ErrUnauthorized)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(s.notBefore) {
		return nil, fmt.Errorf("%w: Token has expired", ErrUnauthorized)
	}
	u, ok := s.users[claims.Subject]
	if !ok {
		return nil, fmt.Errorf("%w: Invalid token", ErrUnauthorized)
	}
	return u, nil
}

func (s *authService) requestReset(email string) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return
	}
	s.resets[uuid.NewString()] = &resetRecord{userID: id, expiresAt: s.now().Add(resetTokenTTL)}
}

func (s *authService) confirmReset(token, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.resets[token]
	if !ok {
		return fmt.Errorf("%w: Invalid password reset token", ErrUnauthorized)
	}
	delete(s.resets, token)
	if s.now().After(record.expiresAt) {
		return fmt.Errorf("%w: Password reset token has expired", ErrGone)
	}

	u := s.users[record.userID]
	u.passwordHash = hash
	for _, r := range s.refresh {
		if r.userID == u.id {
			r.revoked = true
		}
	}
	return nil
}

func (s *authService) resetTokenFor(email string) string {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.emails[email]
	for token, r := range s.resets {
		if r.userID == id {
			return token
		}
	}
	return ""
}

// expireAccessTokens invalidates every access token issued so far while
// leaving refresh tokens usable.
func (s *authService) expireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// JWT iat has second precision.
	s.notBefore = s.now().Add(time.Second).Truncate(time.Second)
}

func (s *authService) revokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refresh {
		r.revoked = true
	}
}

func (s *authService) issueLocked(u *user) (*model.AuthResponse, error) {
	accessToken, err := s.signAccess(u)
	if err != nil {
		return nil, err
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	s.refresh[hashToken(refreshToken)] = &refreshRecord{
		userID:    u.id,
		expiresAt: s.now().Add(s.refreshTTL),
	}

	id := u.identity()
	return &model.AuthResponse{
		ID:                    id.ID,
		Email:                 id.Email,
		Role:                  id.Role,
		MonthlyAILimit:        id.MonthlyAILimit,
		AIUsageInCurrentMonth: id.AIUsageInCurrentMonth,
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
	}, nil
}

func (s *authService) signAccess(u *user) (string, error) {
	now := s.now()
	if now.Before(s.notBefore) {
		now = s.notBefore
	}
	claims := accessClaims{
		Email: u.email,
		Role:  u.role,
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) parse(tokenStr string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("%w: Invalid token", ErrUnauthorized)
	}
	return claims, nil
}

func (s *authService) consumeLoginLocked(addr string) bool {
	cutoff := s.now().Add(-loginWindow)
	recent := s.loginsByAddr[addr][:0]
	for _, at := range s.loginsByAddr[addr] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= loginAttempts {
		s.loginsByAddr[addr] = recent
		return false
	}
	s.loginsByAddr[addr] = append(recent, s.now())
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newRefreshToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
