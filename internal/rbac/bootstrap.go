package rbac

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/users"
)

// AdminRoleName is the role created for the bootstrap administrator.
const AdminRoleName = "admin"

// BootstrapConfig carries the initial administrator credentials.
type BootstrapConfig struct {
	AdminUsername string
	// AdminPassword may be empty, in which case a random password is
	// generated and logged once.
	AdminPassword string
}

// Bootstrap seeds the store on first startup: when no user exists it
// atomically creates the administrator, the admin role holding every
// permission on the wildcard scope, and the membership link between
// them. A crash mid-bootstrap leaves nothing behind; the next startup
// runs the whole unit again.
func (s *Service) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}
	password := cfg.AdminPassword
	generated := false
	if password == "" {
		password = uuid.NewString()
		generated = true
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return err
	}

	seeded := false
	var adminID, roleID uint32
	err = s.repo.WithUpdate(ctx, func(tx kv.Tx) error {
		any, err := s.users.AnyTx(tx)
		if err != nil {
			return err
		}
		if any {
			return nil
		}
		adminID, err = s.users.CreateTx(tx, username, hash, nil)
		if err != nil {
			return err
		}
		roleID, err = s.roles.CreateTx(tx, AdminRoleName, "unrestricted access to every collection")
		if err != nil {
			return err
		}
		for _, perm := range AllPermissions() {
			if err := s.repo.GrantTx(tx, roleID, Grant{Scope: AllCollections(), Permission: perm}); err != nil {
				return err
			}
		}
		if err := s.repo.AssignTx(tx, adminID, roleID); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil {
		return err
	}
	if !seeded {
		return nil
	}
	s.log().Info("bootstrapped administrator",
		slog.String("username", username),
		slog.Uint64("user_id", uint64(adminID)),
		slog.Uint64("role_id", uint64(roleID)))
	if generated {
		s.log().Warn("generated admin password, change it after first login",
			slog.String("password", password))
	}
	return nil
}
