// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidUsername    = errors.New("invalid username")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type Service struct {
	repo              *repository.Repository
	cost              int
	passwordValidator *PasswordValidator
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig) *Service {
	cost := bcrypt.DefaultCost
	if cfg != nil && cfg.BcryptCost >= bcrypt.MinCost && cfg.BcryptCost <= bcrypt.MaxCost {
		cost = cfg.BcryptCost
	}
	return &Service{
		repo:              repo,
		cost:              cost,
		passwordValidator: DefaultPasswordValidator(),
	}
}

// PasswordValidator returns the password policy in use.
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// FindUser looks the login up as a username first and as an email second.
// It returns repository.ErrNotFound when neither matches.
func (s *Service) FindUser(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, repository.ErrNotFound
	}
	user, err := s.repo.GetUserByUsername(ctx, login)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return user, err
	}
	return s.repo.GetUserByEmail(ctx, login)
}

// CreateUserParams holds the parameters for account creation
type CreateUserParams struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
}

// CreateUser creates a new admin account
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	if username == "" || strings.ContainsAny(username, " @;") {
		return nil, ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(params.Email); err != nil {
		return nil, ErrInvalidEmail
	}

	if err := s.passwordValidator.Validate(params.Password, username, params.Email); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}
	if _, err := s.repo.GetUserByEmail(ctx, params.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := s.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: passwordHash,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user_created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login authenticates a user by username or email and returns the user if successful
func (s *Service) Login(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.FindUser(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "login", login, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "login", login, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.TouchUserLogin(ctx, user.ID, time.Now()); err != nil {
		slog.Warn("login_touch_failed", "user_id", user.ID, "error", err)
	}

	slog.Info("login_success", "user_id", user.ID, "username", user.Username)
	return user, nil
}
