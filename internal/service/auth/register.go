package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nikhil/creatortent/internal/auth"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidEmail = errors.New("a valid email address is required")
)

// UserStore is the persistence signup and login need.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthService struct {
	Store UserStore
	JWT   *auth.JWTManager
	Log   *logger.Logger
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(st UserStore, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		Store: st,
		JWT:   jwtManager,
		Log:   logger.NewLogger("auth-service"),
	}
}

// Signup registers a user and returns a session token for it.
func (s *AuthService) Signup(ctx context.Context, user models.User) (string, *models.User, error) {
	email, err := normalizeEmail(user.Email)
	if err != nil {
		return "", nil, err
	}
	if err := auth.ValidatePassword(user.Password); err != nil {
		return "", nil, err
	}

	hashed, err := auth.HashPassword(user.Password)
	if err != nil {
		return "", nil, err
	}
	user.Email = email
	user.PasswordHash = hashed
	user.Password = ""

	if err := s.Store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", nil, ErrEmailTaken
		}
		return "", nil, err
	}

	token, err := s.JWT.Generate(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	s.Log.Audit("User signed up", "user_id", user.ID)
	return token, &user, nil
}

// Login authenticates a user
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.Store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, auth.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.JWT.Generate(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return strings.ToLower(addr.Address), nil
}
