// Package auth implements credential checks and cookie sessions backed by
// the relational store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidInput       = errors.New("username and password are required")
)

// Store is the slice of the persistence adapter the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (int64, error)
	DeleteSession(ctx context.Context, token string) error
}

type Service struct {
	store      Store
	sessionTTL time.Duration
}

func NewService(store Store, sessionTTL time.Duration) *Service {
	return &Service{store: store, sessionTTL: sessionTTL}
}

// Register creates a user with a bcrypt-hashed credential and opens a session.
func (s *Service) Register(ctx context.Context, username, password string) (core.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return core.User{}, "", ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if errors.Is(err, storage.ErrUsernameTaken) {
		return core.User{}, "", ErrUsernameTaken
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return core.User{}, "", err
	}
	return user, token, nil
}

// Login verifies the credential and opens a session. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (core.User, string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return core.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, "", ErrInvalidCredentials
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return core.User{}, "", err
	}
	return user, token, nil
}

// Logout destroys the session. A missing session is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// UserFromToken resolves a session token to its user.
func (s *Service) UserFromToken(ctx context.Context, token string) (core.User, error) {
	userID, err := s.store.GetSession(ctx, token)
	if err != nil {
		return core.User{}, err
	}
	return s.store.GetUser(ctx, userID)
}

func (s *Service) startSession(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.store.CreateSession(ctx, token, userID, time.Now().Add(s.sessionTTL)); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return token, nil
}

// SessionTTL exposes the configured session lifetime for cookie expiry.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}
