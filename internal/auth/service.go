package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

// UserDirectory is the slice of the users module auth relies on.
type UserDirectory interface {
	FindByLogin(ctx context.Context, login string) (users.User, error)
	Get(ctx context.Context, id int64) (users.User, error)
	Create(ctx context.Context, in users.CreateInput, actorID int64) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserDirectory
	tokens *TokenIssuer
}

// NewService constructs a new Service.
func NewService(users UserDirectory, tokens *TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Authenticate validates username or email plus password.
func (s *Service) Authenticate(ctx context.Context, login, password string) (users.User, error) {
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, login, password string) (Token, error) {
	user, err := s.Authenticate(ctx, login, password)
	if err != nil {
		return Token{}, err
	}
	return s.tokens.Issue(user)
}

// Register creates a regular account. Admin rights are never granted here.
func (s *Service) Register(ctx context.Context, in users.CreateInput) (users.User, error) {
	in.IsAdmin = false
	return s.users.Create(ctx, in, 0)
}

// Principal resolves a bearer token into the current principal, rejecting
// tokens of accounts that were deactivated after issue.
func (s *Service) Principal(ctx context.Context, raw string) (shared.Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Principal{}, err
	}
	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return shared.Principal{}, ErrInvalidToken
		}
		return shared.Principal{}, err
	}
	if !user.IsActive {
		return shared.Principal{}, shared.ErrInactiveUser
	}
	return shared.Principal{UserID: user.ID, Username: user.Username, IsActive: user.IsActive, IsAdmin: user.IsAdmin}, nil
}
