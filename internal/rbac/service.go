package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/roles"
	"github.com/vectra-db/vectra/internal/shared"
	"github.com/vectra-db/vectra/internal/users"
)

// Service orchestrates RBAC operations: membership, grants, cascading
// deletes and authorization decisions. Every mutation runs as one write
// transaction so record and index updates commit together or not at all.
type Service struct {
	repo   *Repository
	users  *users.Repository
	roles  *roles.Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service. cache may be nil to disable decision
// caching.
func NewService(repo *Repository, userRepo *users.Repository, roleRepo *roles.Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: userRepo, roles: roleRepo, cache: cache, logger: logger}
}

// AssignRole adds the role to the user's membership set. Fails with
// ErrNotFound when either id is absent; idempotent when already
// assigned.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uint32) error {
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if !s.users.ExistsTx(tx, userID) {
			return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
		}
		if !s.roles.ExistsTx(tx, roleID) {
			return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return s.repo.AssignTx(tx, userID, roleID)
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// UnassignRole removes the role from the user's membership set.
// Idempotent when not assigned.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID uint32) error {
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if !s.users.ExistsTx(tx, userID) {
			return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
		}
		return s.repo.UnassignTx(tx, userID, roleID)
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// ListRoles returns the user's role ids. A user with no roles yields an
// empty set, not an error.
func (s *Service) ListRoles(ctx context.Context, userID uint32) ([]uint32, error) {
	var ids []uint32
	err := s.repo.WithView(ctx, func(tx kv.Tx) error {
		if !s.users.ExistsTx(tx, userID) {
			return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
		}
		got, err := s.repo.RolesOfTx(tx, userID)
		if err != nil {
			return err
		}
		ids = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint32{}
	}
	return ids, nil
}

// GrantPermission attaches (scope, permission) to the role. Granting an
// already-present pair is a no-op.
func (s *Service) GrantPermission(ctx context.Context, roleID uint32, scope Scope, perm Permission) error {
	if !perm.Valid() {
		return fmt.Errorf("%w: permission tag %d", shared.ErrInvalidGrant, uint8(perm))
	}
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if !s.roles.ExistsTx(tx, roleID) {
			return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return s.repo.GrantTx(tx, roleID, Grant{Scope: scope, Permission: perm})
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// RevokePermission detaches (scope, permission) from the role. Revoking
// an absent pair is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID uint32, scope Scope, perm Permission) error {
	if !perm.Valid() {
		return fmt.Errorf("%w: permission tag %d", shared.ErrInvalidGrant, uint8(perm))
	}
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if !s.roles.ExistsTx(tx, roleID) {
			return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return s.repo.RevokeTx(tx, roleID, Grant{Scope: scope, Permission: perm})
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// RoleGrants returns the role's grant set.
func (s *Service) RoleGrants(ctx context.Context, roleID uint32) ([]Grant, error) {
	var grants []Grant
	err := s.repo.WithView(ctx, func(tx kv.Tx) error {
		if !s.roles.ExistsTx(tx, roleID) {
			return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		got, err := s.repo.GrantsOfTx(tx, roleID)
		if err != nil {
			return err
		}
		grants = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if grants == nil {
		grants = []Grant{}
	}
	return grants, nil
}

// DeleteRole removes the role record, its grant set and every
// membership reference in one atomic unit, so no membership entry ever
// points at a nonexistent role.
func (s *Service) DeleteRole(ctx context.Context, roleID uint32) error {
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if err := s.roles.DeleteRecordTx(tx, roleID); err != nil {
			return err
		}
		if err := s.repo.DropGrantsTx(tx, roleID); err != nil {
			return err
		}
		return s.repo.CascadeUnassignTx(tx, roleID)
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// DeleteUser removes the user record and its membership entry. Roles
// are left untouched.
func (s *Service) DeleteUser(ctx context.Context, userID uint32) error {
	err := s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		if err := s.users.DeleteTx(tx, userID); err != nil {
			return err
		}
		return s.repo.DropMembershipTx(tx, userID)
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}

// EffectivePermissions returns the deduplicated union of grants across
// all of the user's roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID uint32) ([]Grant, error) {
	var out []Grant
	err := s.repo.WithView(ctx, func(tx kv.Tx) error {
		if !s.users.ExistsTx(tx, userID) {
			return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
		}
		roleIDs, err := s.repo.RolesOfTx(tx, userID)
		if err != nil {
			return err
		}
		seen := make(map[Grant]struct{})
		for _, roleID := range roleIDs {
			grants, err := s.repo.GrantsOfTx(tx, roleID)
			if err != nil {
				return err
			}
			for _, g := range grants {
				if _, ok := seen[g]; ok {
					continue
				}
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Grant{}
	}
	return out, nil
}

// Check decides whether the user may exercise the permission on the
// collection. It allows as soon as any role holds a matching grant,
// either collection-scoped or wildcard; role order never affects the
// result. The check is fail-closed: any internal fault is logged and
// answered with deny, never surfaced as an error.
func (s *Service) Check(ctx context.Context, userID uint32, perm Permission, collectionID uint32) bool {
	if !perm.Valid() {
		return false
	}
	ver, cacheable := s.cache.Version(ctx)
	if cacheable {
		if allowed, ok := s.cache.Lookup(ctx, ver, userID, perm, collectionID); ok {
			return allowed
		}
	}
	allowed, err := s.decide(ctx, userID, perm, func(sc Scope) bool { return sc.Matches(collectionID) })
	if err != nil {
		s.log().Warn("authorization check failed closed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("permission", perm.String()),
			slog.Uint64("collection_id", uint64(collectionID)),
			slog.Any("error", err))
		return false
	}
	if cacheable {
		s.cache.Store(ctx, ver, userID, perm, collectionID, allowed)
	}
	return allowed
}

// CheckGlobal decides a non-collection-scoped operation. Only
// wildcard-scoped grants qualify; a grant on a single collection never
// authorizes a global operation.
func (s *Service) CheckGlobal(ctx context.Context, userID uint32, perm Permission) bool {
	if !perm.Valid() {
		return false
	}
	allowed, err := s.decide(ctx, userID, perm, Scope.IsWildcard)
	if err != nil {
		s.log().Warn("global authorization check failed closed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("permission", perm.String()),
			slog.Any("error", err))
		return false
	}
	return allowed
}

// IsAdmin reports whether the user's grant closure covers every
// permission on the wildcard scope.
func (s *Service) IsAdmin(ctx context.Context, userID uint32) bool {
	grants, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		s.log().Warn("admin check failed closed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err))
		return false
	}
	covered := make(map[Permission]struct{})
	for _, g := range grants {
		if g.Scope.IsWildcard() {
			covered[g.Permission] = struct{}{}
		}
	}
	return len(covered) == len(AllPermissions())
}

func (s *Service) decide(ctx context.Context, userID uint32, perm Permission, scopeOK func(Scope) bool) (bool, error) {
	allowed := false
	err := s.repo.WithView(ctx, func(tx kv.Tx) error {
		roleIDs, err := s.repo.RolesOfTx(tx, userID)
		if err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			grants, err := s.repo.GrantsOfTx(tx, roleID)
			if err != nil {
				return err
			}
			for _, g := range grants {
				if g.Permission == perm && scopeOK(g.Scope) {
					allowed = true
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
