package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pulsehq/pulse/internal/permissions"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic. It doubles as the permission
// middleware's identity directory.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches a single user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser validates and inserts a new user with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, u User, password string) (User, error) {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	u.Role = strings.TrimSpace(strings.ToLower(u.Role))
	if u.Email == "" {
		return User{}, errors.New("users: email required")
	}
	if u.Role == "" {
		return User{}, errors.New("users: role required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, u, string(hash))
}

// UpdateUser updates an existing user.
func (s *Service) UpdateUser(ctx context.Context, u User) (User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Role = strings.TrimSpace(strings.ToLower(u.Role))
	if u.Role == "" {
		return User{}, errors.New("users: role required")
	}
	return s.repo.UpdateUser(ctx, u)
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// IdentityByUserID resolves the permission identity for a user. Inactive
// users resolve like unknown ones so their sessions lose all access.
func (s *Service) IdentityByUserID(ctx context.Context, userID int64) (permissions.Identity, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return permissions.Identity{}, err
	}
	if !user.IsActive {
		return permissions.Identity{}, errors.New("users: account disabled")
	}
	return permissions.Identity{ID: user.ID, Role: user.Role, Department: user.Department}, nil
}
