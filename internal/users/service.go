package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

// Service wraps identity business rules.
type Service struct {
	repo *Repository
}

// NewService constructs a new Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreateUser hashes the password, allocates an id and persists the
// record atomically. Fails with ErrDuplicate on username collision.
func (s *Service) CreateUser(ctx context.Context, username, password string) (uint32, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return 0, err
	}
	if password == "" {
		return 0, errors.New("users: password required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	var id uint32
	err = s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		created, err := s.repo.CreateTx(tx, username, hash, nil)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id uint32) (User, error) {
	return s.repo.Get(ctx, id)
}

// ListUsers returns all users in id order.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// VerifyPassword compares the supplied password against the stored hash.
// The comparison is constant-time. Returns ErrNotFound for unknown ids
// and ErrUnauthorized on mismatch.
func (s *Service) VerifyPassword(ctx context.Context, id uint32, password string) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return shared.ErrUnauthorized
	}
	return nil
}

// Authenticate resolves credentials to a user. Unknown usernames and
// wrong passwords both surface ErrUnauthorized so callers cannot probe
// for account existence.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.ErrUnauthorized
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, shared.ErrUnauthorized
	}
	return user, nil
}
