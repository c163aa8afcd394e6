package rbac

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/roles"
	"github.com/vectra-db/vectra/internal/shared"
	"github.com/vectra-db/vectra/internal/users"
)

type fixture struct {
	store    *kv.Store
	users    *users.Service
	roles    *roles.Service
	rbac     *Service
	userRepo *users.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := users.NewRepository(store)
	roleRepo := roles.NewRepository(store)
	return &fixture{
		store:    store,
		users:    users.NewService(userRepo),
		roles:    roles.NewService(roleRepo),
		rbac:     NewService(NewRepository(store), userRepo, roleRepo, nil, logger),
		userRepo: userRepo,
	}
}

func (f *fixture) bootstrap(t *testing.T) {
	t.Helper()
	require.NoError(t, f.rbac.Bootstrap(context.Background(), BootstrapConfig{
		AdminUsername: "admin",
		AdminPassword: "admin-secret",
	}))
}

func TestBootstrapSeedsAdministrator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	admin, err := f.users.GetUser(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), admin.ID)
	require.Equal(t, "admin", admin.Username)
	require.NoError(t, f.users.VerifyPassword(ctx, 0, "admin-secret"))

	role, err := f.roles.GetRoleByName(ctx, AdminRoleName)
	require.NoError(t, err)
	require.Equal(t, uint32(0), role.ID)

	grants, err := f.rbac.RoleGrants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 12)
	for _, g := range grants {
		require.True(t, g.Scope.IsWildcard())
	}

	ids, err := f.rbac.ListRoles(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{role.ID}, ids)
	require.True(t, f.rbac.IsAdmin(ctx, 0))
}

func TestBootstrapSkippedWhenAnyUserExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	// A second startup with different credentials must not reseed or
	// overwrite anything.
	require.NoError(t, f.rbac.Bootstrap(ctx, BootstrapConfig{
		AdminUsername: "other",
		AdminPassword: "other-secret",
	}))

	list, err := f.users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "admin", list[0].Username)
	require.NoError(t, f.users.VerifyPassword(ctx, 0, "admin-secret"))
}

func TestBootstrapGeneratesPasswordWhenUnset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rbac.Bootstrap(ctx, BootstrapConfig{}))

	admin, err := f.users.GetUser(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "admin", admin.Username)
	require.NotEmpty(t, admin.PasswordHash)
	// An empty password must never verify.
	require.ErrorIs(t, f.users.VerifyPassword(ctx, 0, ""), shared.ErrUnauthorized)
}

func TestGrantAssignCheckWalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	require.Equal(t, uint32(1), aliceID)

	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.Equal(t, uint32(1), readerID)

	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))

	require.True(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))
	require.False(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 6))
	require.False(t, f.rbac.Check(ctx, aliceID, PermUpsertVectors, 5))

	// The wildcard covers collections that do not even exist yet.
	require.True(t, f.rbac.Check(ctx, 0, PermUpsertVectors, 9999))
}

func TestDeleteRoleCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	bobID, err := f.users.CreateUser(ctx, "bob", "password")
	require.NoError(t, err)

	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))
	require.NoError(t, f.rbac.AssignRole(ctx, bobID, readerID))

	require.NoError(t, f.rbac.DeleteRole(ctx, readerID))

	require.False(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))
	for _, userID := range []uint32{aliceID, bobID} {
		ids, err := f.rbac.ListRoles(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, ids)
	}
	_, err = f.roles.GetRole(ctx, readerID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.rbac.RoleGrants(ctx, readerID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRoleIDsNeverReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.DeleteRole(ctx, readerID))

	nextID, err := f.roles.CreateRole(ctx, "writer", "")
	require.NoError(t, err)
	require.Greater(t, nextID, readerID)
}

func TestAssignIdempotentAndValidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)

	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))
	ids, err := f.rbac.ListRoles(ctx, aliceID)
	require.NoError(t, err)
	require.Equal(t, []uint32{readerID}, ids)

	require.ErrorIs(t, f.rbac.AssignRole(ctx, 42, readerID), shared.ErrNotFound)
	require.ErrorIs(t, f.rbac.AssignRole(ctx, aliceID, 42), shared.ErrNotFound)

	require.NoError(t, f.rbac.UnassignRole(ctx, aliceID, readerID))
	require.NoError(t, f.rbac.UnassignRole(ctx, aliceID, readerID))
	ids, err = f.rbac.ListRoles(ctx, aliceID)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestGrantRevokeIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)

	// An unrelated grant seeded up front must ride out the whole cycle.
	kept := Grant{Scope: AllCollections(), Permission: PermListVersions}
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, kept.Scope, kept.Permission))

	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	grants, err := f.rbac.RoleGrants(ctx, readerID)
	require.NoError(t, err)
	require.Len(t, grants, 2)

	require.NoError(t, f.rbac.RevokePermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.NoError(t, f.rbac.RevokePermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	grants, err = f.rbac.RoleGrants(ctx, readerID)
	require.NoError(t, err)
	require.Equal(t, []Grant{kept}, grants)
}

func TestRevokeUndoesGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))

	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.True(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))

	require.NoError(t, f.rbac.RevokePermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.False(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))
}

func TestGrantRejectsUnknownRoleAndPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	err := f.rbac.GrantPermission(ctx, 42, CollectionScope(5), PermQueryVectors)
	require.ErrorIs(t, err, shared.ErrNotFound)

	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	err = f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), Permission(200))
	require.ErrorIs(t, err, shared.ErrInvalidGrant)
}

func TestCheckFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	// Unknown users and invalid permissions are denied, never errors.
	require.False(t, f.rbac.Check(ctx, 42, PermQueryVectors, 5))
	require.False(t, f.rbac.Check(ctx, 0, Permission(200), 5))
	require.False(t, f.rbac.CheckGlobal(ctx, 42, PermListCollections))
}

func TestCheckAnyRoleSuffices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	emptyID, err := f.roles.CreateRole(ctx, "empty", "")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))

	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, emptyID))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))

	require.True(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))
}

func TestCheckGlobalRequiresWildcard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))

	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermListCollections))
	require.False(t, f.rbac.CheckGlobal(ctx, aliceID, PermListCollections))

	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, AllCollections(), PermListCollections))
	require.True(t, f.rbac.CheckGlobal(ctx, aliceID, PermListCollections))

	require.True(t, f.rbac.CheckGlobal(ctx, 0, PermCreateCollection))
}

func TestEffectivePermissionsDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	auditorID, err := f.roles.CreateRole(ctx, "auditor", "")
	require.NoError(t, err)

	shared5 := Grant{Scope: CollectionScope(5), Permission: PermQueryVectors}
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, shared5.Scope, shared5.Permission))
	require.NoError(t, f.rbac.GrantPermission(ctx, auditorID, shared5.Scope, shared5.Permission))
	require.NoError(t, f.rbac.GrantPermission(ctx, auditorID, AllCollections(), PermListVersions))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, auditorID))

	grants, err := f.rbac.EffectivePermissions(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.Contains(t, grants, shared5)
	require.Contains(t, grants, Grant{Scope: AllCollections(), Permission: PermListVersions})

	_, err = f.rbac.EffectivePermissions(ctx, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIsAdminRequiresFullWildcardClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	require.False(t, f.rbac.IsAdmin(ctx, aliceID))

	// Eleven of twelve wildcard grants is not enough.
	almostID, err := f.roles.CreateRole(ctx, "almost", "")
	require.NoError(t, err)
	for _, perm := range AllPermissions()[:11] {
		require.NoError(t, f.rbac.GrantPermission(ctx, almostID, AllCollections(), perm))
	}
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, almostID))
	require.False(t, f.rbac.IsAdmin(ctx, aliceID))

	last := AllPermissions()[11]
	require.NoError(t, f.rbac.GrantPermission(ctx, almostID, AllCollections(), last))
	require.True(t, f.rbac.IsAdmin(ctx, aliceID))

	// Collection-scoped grants never count toward the closure.
	require.NoError(t, f.rbac.RevokePermission(ctx, almostID, AllCollections(), last))
	require.NoError(t, f.rbac.GrantPermission(ctx, almostID, CollectionScope(1), last))
	require.False(t, f.rbac.IsAdmin(ctx, aliceID))
}

func TestDeleteUserDropsMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bootstrap(t)

	aliceID, err := f.users.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	readerID, err := f.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, f.rbac.GrantPermission(ctx, readerID, CollectionScope(5), PermQueryVectors))
	require.NoError(t, f.rbac.AssignRole(ctx, aliceID, readerID))

	require.NoError(t, f.rbac.DeleteUser(ctx, aliceID))

	_, err = f.users.GetUser(ctx, aliceID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.rbac.ListRoles(ctx, aliceID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, f.rbac.Check(ctx, aliceID, PermQueryVectors, 5))

	// The role itself survives.
	_, err = f.roles.GetRole(ctx, readerID)
	require.NoError(t, err)

	require.ErrorIs(t, f.rbac.DeleteUser(ctx, aliceID), shared.ErrNotFound)
}
