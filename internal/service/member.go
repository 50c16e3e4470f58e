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

// MemberService provisions members and serves the member directory.
type MemberService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewMemberService creates a new MemberService.
func NewMemberService(users repository.UserRepository, logger *slog.Logger) *MemberService {
	return &MemberService{users: users, logger: logger}
}

// CreateMember provisions a member owned by the acting admin.
func (s *MemberService) CreateMember(ctx context.Context, actor model.Actor, req model.CreateMemberRequest) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "MemberService.CreateMember")
	defer span.End()

	if err := authorize(actor, CapManageMembers); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// A member's creator must itself be a stored admin, not just carry the
	// role in its token.
	creator, err := s.users.GetByID(ctx, actor.ID)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, model.Forbidden("admin for member creation not found")
	}
	if err != nil {
		return nil, err
	}
	if creator.Role != model.RoleAdmin {
		return nil, model.Forbidden("only admins can create a member")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	member, err := s.users.Create(ctx, &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        model.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         model.RoleMember,
		CreatedBy:    creator.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	s.logger.InfoContext(ctx, "member created",
		slog.String("id", member.ID),
		slog.String("created_by", member.CreatedBy),
	)
	return member, nil
}

// ListMembers returns the members the acting admin provisioned.
func (s *MemberService) ListMembers(ctx context.Context, actor model.Actor) ([]*model.User, error) {
	ctx, span := tracer.Start(ctx, "MemberService.ListMembers")
	defer span.End()

	if err := authorize(actor, CapManageMembers); err != nil {
		return nil, err
	}
	members, err := s.users.ListMembers(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}
