package collections

import (
	"context"
	"errors"
	"strings"
)

// Service wraps catalog business rules.
type Service struct {
	repo *Repository
}

// NewService constructs a new Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreateCollection registers a new collection in the catalog.
func (s *Service) CreateCollection(ctx context.Context, name string, dimension uint32, metric string) (uint32, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("collections: name required")
	}
	if dimension == 0 {
		return 0, errors.New("collections: dimension required")
	}
	if metric == "" {
		metric = "cosine"
	}
	return s.repo.Create(ctx, name, dimension, metric)
}

// GetCollection fetches a collection by id.
func (s *Service) GetCollection(ctx context.Context, id uint32) (Collection, error) {
	return s.repo.Get(ctx, id)
}

// ListCollections returns all collections in id order.
func (s *Service) ListCollections(ctx context.Context) ([]Collection, error) {
	return s.repo.List(ctx)
}

// DeleteCollection removes a collection from the catalog. Grants
// referencing the id keep their scope; they simply never match again
// unless the id is reused, which the allocator forbids.
func (s *Service) DeleteCollection(ctx context.Context, id uint32) error {
	return s.repo.Delete(ctx, id)
}
