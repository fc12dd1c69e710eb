package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Store abstracts user persistence for the service.
type Store interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByLogin(ctx context.Context, login string) (User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
}

// Service exposes user management use-cases.
type Service struct {
	repo     Store
	audit    shared.AuditRecorder
	logger   *slog.Logger
	hashCost int
}

// NewService constructs Service. audit may be nil.
func NewService(repo Store, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// HashPassword hashes a plain password with bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID int64) (User, error) {
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      in.IsAdmin,
	})
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "USER_CREATE", user.ID, map[string]any{"username": user.Username, "is_admin": user.IsAdmin})
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByLogin loads a user by username or email.
func (s *Service) FindByLogin(ctx context.Context, login string) (User, error) {
	return s.repo.FindByLogin(ctx, strings.TrimSpace(login))
}

// List returns users and the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// UpdateSelf applies profile changes made by the account owner. Active and
// admin flags cannot be changed this way.
func (s *Service) UpdateSelf(ctx context.Context, id int64, in UpdateInput) (User, error) {
	in.IsActive = nil
	in.IsAdmin = nil
	return s.update(ctx, id, id, in)
}

// Update applies admin changes to any account.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	if actorID == id && in.IsActive != nil && !*in.IsActive {
		return User{}, ErrSelfModification
	}
	return s.update(ctx, actorID, id, in)
}

// SetStatus toggles the active flag.
func (s *Service) SetStatus(ctx context.Context, actorID, id int64, active bool) (User, error) {
	return s.Update(ctx, actorID, id, UpdateInput{IsActive: &active})
}

// Delete deactivates the account. Rows are kept so history stays valid.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfModification
	}
	inactive := false
	_, err := s.update(ctx, actorID, id, UpdateInput{IsActive: &inactive})
	return err
}

func (s *Service) update(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	changed := []string{}
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
		changed = append(changed, "email")
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
		changed = append(changed, "full_name")
	}
	if in.Password != nil {
		hash, err := s.HashPassword(*in.Password)
		if err != nil {
			return User{}, err
		}
		user.PasswordHash = hash
		changed = append(changed, "password")
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
		changed = append(changed, "is_active")
	}
	if in.IsAdmin != nil {
		user.IsAdmin = *in.IsAdmin
		changed = append(changed, "is_admin")
	}
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "USER_UPDATE", id, map[string]any{"fields": changed})
	return updated, nil
}

// EnsureAdmin creates the bootstrap admin account when no account with the
// username exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (User, bool, error) {
	if username == "" || password == "" {
		return User{}, false, errors.New("users: bootstrap admin requires username and password")
	}
	existing, err := s.repo.FindByLogin(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}
	user, err := s.Create(ctx, CreateInput{Username: username, Email: email, FullName: "Administrator", Password: password, IsAdmin: true}, 0)
	if err != nil {
		return User{}, false, err
	}
	s.logger.Info("bootstrap admin created", slog.String("username", user.Username))
	return user, true, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: fmt.Sprintf("%d", id), Meta: meta}); err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}
