package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/vectra-db/vectra/internal/kv"
)

// Service wraps role record business rules. Grant attachment and
// deletion cascades are orchestrated by the rbac service.
type Service struct {
	repo *Repository
}

// NewService constructs a new Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreateRole inserts a new role. Fails with ErrDuplicate on name
// collision.
func (s *Service) CreateRole(ctx context.Context, name, description string) (uint32, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("roles: role name required")
	}
	var id uint32
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		created, err := s.repo.CreateTx(tx, name, strings.TrimSpace(description))
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

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id uint32) (Role, error) {
	return s.repo.Get(ctx, id)
}

// GetRoleByName fetches a role by its unique name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetByName(ctx, name)
}

// ListRoles returns all roles in id order.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}
