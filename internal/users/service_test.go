package users

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewService(NewRepository(store))
}

func TestCreateUserAllocatesSequentialIDs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	id, err := svc.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	require.Equal(t, uint32(0), id)

	id, err = svc.CreateUser(ctx, "bob", "password")
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	user, err := svc.GetUser(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.NotEmpty(t, user.PasswordHash)
	require.NotEqual(t, []byte("password"), user.PasswordHash)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "alice", "other")
	require.ErrorIs(t, err, shared.ErrDuplicate)

	// A failed create must not consume an id.
	id, err := svc.CreateUser(ctx, "bob", "password")
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)
}

func TestCreateUserValidatesInput(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "", "password")
	require.Error(t, err)
	_, err = svc.CreateUser(ctx, "   ", "password")
	require.Error(t, err)
	_, err = svc.CreateUser(ctx, "alice", "")
	require.Error(t, err)
	_, err = svc.CreateUser(ctx, "al ice", "password")
	require.Error(t, err)
}

func TestConcurrentCreateUserDistinctNames(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	const n = 8

	ids := make([]uint32, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.CreateUser(ctx, fmt.Sprintf("user-%02d", i), "password")
		}(i)
	}
	wg.Wait()

	// Writers are serialized, so every call gets its own id.
	seen := make(map[uint32]struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotContains(t, seen, ids[i])
		seen[ids[i]] = struct{}{}
	}
}

func TestConcurrentCreateUserSharedName(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	const n = 8

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateUser(ctx, "alice", "password")
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			created++
			continue
		}
		require.True(t, errors.Is(errs[i], shared.ErrDuplicate))
	}
	require.Equal(t, 1, created)

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestVerifyPassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	id, err := svc.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)

	require.NoError(t, svc.VerifyPassword(ctx, id, "password"))
	require.ErrorIs(t, svc.VerifyPassword(ctx, id, "wrong"), shared.ErrUnauthorized)
	require.ErrorIs(t, svc.VerifyPassword(ctx, 42, "password"), shared.ErrNotFound)
}

func TestAuthenticateNeverRevealsExistence(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "password")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "alice", "password")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "nobody", "password")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestListUsersOrderedByID(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := svc.CreateUser(ctx, name, "password")
		require.NoError(t, err)
	}

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"carol", "alice", "bob"}, []string{list[0].Username, list[1].Username, list[2].Username})
	require.Equal(t, uint32(0), list[0].ID)
	require.Equal(t, uint32(2), list[2].ID)
}
