package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CredentialStore exposes user credential lookup operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// TokenClaims are the identity claims carried by a bearer token.
type TokenClaims struct {
	Subject   string
	CompanyID string
	Role      Role
	Name      string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(claims TokenClaims) (string, time.Time, error)
	Verify(token string) (TokenClaims, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService signs users in and resolves bearer tokens to principals.
// HTTP requests and live transport handshakes share Authenticate.
type AuthService struct {
	credentials    CredentialStore
	tokens         TokenIssuer
	verifyPassword PasswordVerifier
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, tokens TokenIssuer, verify PasswordVerifier) *AuthService {
	return NewAuthServiceWithLogger(credentials, tokens, verify, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, tokens TokenIssuer, verify PasswordVerifier, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	return &AuthService{
		credentials:    credentials,
		tokens:         tokens,
		verifyPassword: verify,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Login validates credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.tokens == nil {
		err = fmt.Errorf("auth dependencies not configured")
		return
	}

	email := strings.TrimSpace(strings.ToLower(params.Email))
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.Principal.UserID).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(mapStoreError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}
	if !creds.User.Active {
		err = ErrAccountDisabled
		return
	}

	principal := creds.User.Principal()
	var (
		token     string
		expiresAt time.Time
	)
	token, expiresAt, err = s.tokens.Issue(TokenClaims{
		Subject:   principal.UserID,
		CompanyID: principal.CompanyID,
		Role:      principal.Role,
		Name:      principal.Name,
	})
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)
		return
	}

	result = LoginResult{Token: token, ExpiresAt: expiresAt, Principal: principal}
	return
}

// Authenticate verifies the token signature, then resolves its subject to
// an active user. Every failure is reported as ErrUnauthenticated except
// store outages.
func (s *AuthService) Authenticate(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.tokens == nil {
		err = fmt.Errorf("auth dependencies not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "Authenticate", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "token rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "token accepted")
	}()

	if trimmed == "" {
		err = ErrUnauthenticated
		return
	}

	claims, verifyErr := s.tokens.Verify(trimmed)
	if verifyErr != nil || claims.Subject == "" {
		err = ErrUnauthenticated
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(mapStoreError(err), ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}
	if !user.Active {
		err = ErrUnauthenticated
		return
	}

	principal = user.Principal()
	return
}
