// Package auth authenticates the single configured admin and issues session
// tokens for the admin API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/kruthika/companion/internal/config"
)

const issuer = "companion-admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin authentication disabled")
)

type AdminAuthService struct {
	cfg          config.AdminConfig
	tokenManager *TokenManager
}

func NewAdminAuthService(cfg config.AdminConfig) (*AdminAuthService, error) {
	if !cfg.Enabled {
		return &AdminAuthService{cfg: cfg}, nil
	}
	tokenManager, err := NewTokenManager(cfg.Session.JWTSecret, cfg.Session.AccessTokenTTL, cfg.Session.RefreshTokenTTL, issuer)
	if err != nil {
		return nil, err
	}
	return &AdminAuthService{cfg: cfg, tokenManager: tokenManager}, nil
}

func (s *AdminAuthService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.tokenManager != nil
}

// AuthenticateLocal checks the credentials against the configured admin.
func (s *AdminAuthService) AuthenticateLocal(_ context.Context, email, password string) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrAdminDisabled
	}
	email = strings.TrimSpace(email)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(email)), []byte(strings.ToLower(s.cfg.Local.Email))) != 1 {
		return nil, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(password, s.cfg.Local.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.tokenManager.Generate(s.cfg.Local.Email)
}

// Refresh exchanges a refresh token for a new pair.
func (s *AdminAuthService) Refresh(token string) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrAdminDisabled
	}
	subject, err := s.tokenManager.Subject(token, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.tokenManager.Generate(subject)
}

// ValidateAccessToken returns the admin email carried by an access token.
func (s *AdminAuthService) ValidateAccessToken(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrAdminDisabled
	}
	return s.tokenManager.Subject(token, tokenTypeAccess)
}
