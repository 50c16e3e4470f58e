package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hiroki-koketsu/task-assignment/internal/auth"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/repository"
)

// TokenIssuer signs bearer tokens for users.
type TokenIssuer interface {
	Issue(u *model.User) (string, error)
}

// AccountService registers admins and logs users in.
type AccountService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	logger *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(users repository.UserRepository, tokens TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{users: users, tokens: tokens, logger: logger}
}

// Signup registers a new admin account and logs it in.
func (s *AccountService) Signup(ctx context.Context, req model.SignupRequest) (*model.LoginResponse, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Signup")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	admin, err := s.users.Create(ctx, &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        model.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	token, err := s.tokens.Issue(admin)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "admin registered", slog.String("id", admin.ID))
	return &model.LoginResponse{Token: token, User: admin}, nil
}

// Login exchanges credentials for a token.
func (s *AccountService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Login")
	defer span.End()

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, model.Validationf("email and password are required")
	}
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.logger.WarnContext(ctx, "login rejected", slog.String("id", user.ID))
		return nil, model.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user logged in", slog.String("id", user.ID), slog.String("role", string(user.Role)))
	return &model.LoginResponse{Token: token, User: user}, nil
}
