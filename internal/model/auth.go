package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type PasswordResetConfirm struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// AuthResponse is returned by both login and register.
type AuthResponse struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	Role                  string `json:"role"`
	MonthlyAILimit        int    `json:"monthlyAiLimit"`
	AIUsageInCurrentMonth int    `json:"aiUsageInCurrentMonth"`
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
}

func (r AuthResponse) User() UserIdentity {
	return UserIdentity{
		ID:                    r.ID,
		Email:                 r.Email,
		Role:                  r.Role,
		MonthlyAILimit:        r.MonthlyAILimit,
		AIUsageInCurrentMonth: r.AIUsageInCurrentMonth,
	}
}

func (r AuthResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type UserInfoResponse struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	Role                  string `json:"role"`
	MonthlyAILimit        int    `json:"monthlyAiLimit"`
	AIUsageInCurrentMonth int    `json:"aiUsageInCurrentMonth"`
}

func (r UserInfoResponse) User() UserIdentity {
	return UserIdentity(r)
}

type UserIdentity struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	Role                  string `json:"role"`
	MonthlyAILimit        int    `json:"monthlyAiLimit"`
	AIUsageInCurrentMonth int    `json:"aiUsageInCurrentMonth"`
}

// TokenPair is either complete or treated as no session at all.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// AccessExpiry reads the exp claim of the access token without verifying the
// signature. Only for display; the server stays the authority on validity.
func (p TokenPair) AccessExpiry() (time.Time, bool) {
	if p.AccessToken == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

type SessionState struct {
	User      *UserIdentity `json:"user"`
	Tokens    *TokenPair    `json:"-"`
	IsLoading bool          `json:"isLoading"`
}

func (s SessionState) IsAuthenticated() bool {
	return s.User != nil && s.Tokens != nil
}
