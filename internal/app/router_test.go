package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectra-db/vectra/internal/collections"
	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/rbac"
	"github.com/vectra-db/vectra/internal/roles"
	"github.com/vectra-db/vectra/internal/users"
)

type testServer struct {
	server *httptest.Server
	rbac   *rbac.Service
	users  *users.Service
	roles  *roles.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := users.NewRepository(store)
	userService := users.NewService(userRepo)
	roleRepo := roles.NewRepository(store)
	roleService := roles.NewService(roleRepo)
	rbacService := rbac.NewService(rbac.NewRepository(store), userRepo, roleRepo, nil, logger)
	collectionService := collections.NewService(collections.NewRepository(store))

	require.NoError(t, rbacService.Bootstrap(context.Background(), rbac.BootstrapConfig{
		AdminUsername: "admin",
		AdminPassword: "admin-secret",
	}))

	mw := rbac.Middleware{Service: rbacService, Logger: logger}
	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Users:              userService,
		UsersHandler:       users.NewHandler(logger, userService),
		RolesHandler:       roles.NewHandler(logger, roleService),
		RBACHandler:        rbac.NewHandler(logger, rbacService),
		CollectionsHandler: collections.NewHandler(logger, collectionService, mw),
		RBACMiddleware:     mw,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{server: server, rbac: rbacService, users: userService, roles: roleService}
}

func (ts *testServer) do(t *testing.T, method, path, user, password, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthzIsPublic(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/healthz", "", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/users", "", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	resp = ts.do(t, http.MethodGet, "/users", "admin", "wrong", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestManagementRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.users.CreateUser(ctx, "alice", "alice-secret")
	require.NoError(t, err)

	resp := ts.do(t, http.MethodGet, "/users", "alice", "alice-secret", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/users", "admin", "admin-secret", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserAndGrantManagementOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/users", "admin", "admin-secret",
		`{"username":"alice","password":"alice-secret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/users", "admin", "admin-secret",
		`{"username":"alice","password":"alice-secret"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/roles", "admin", "admin-secret",
		`{"name":"reader","description":"read access"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Bootstrap took user 0 and role 0, so alice is 1 and reader is 1.
	resp = ts.do(t, http.MethodPost, "/roles/1/grants", "admin", "admin-secret",
		`{"scope":"5","permission":"QueryVectors"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/roles/1/grants", "admin", "admin-secret",
		`{"scope":"5","permission":"LaunchMissiles"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/users/1/roles/1", "admin", "admin-secret", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/authz/check", "admin", "admin-secret",
		`{"user_id":1,"permission":"QueryVectors","collection_id":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"allowed":true}`, string(raw))

	resp = ts.do(t, http.MethodPost, "/authz/check", "admin", "admin-secret",
		`{"user_id":1,"permission":"QueryVectors","collection_id":6}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"allowed":false}`, string(raw))

	resp = ts.do(t, http.MethodDelete, "/roles/1", "admin", "admin-secret", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/users/1/roles", "admin", "admin-secret", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"role_ids":[]}`, string(raw))
}

func TestCollectionRoutesAreGuardedByPermission(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	aliceID, err := ts.users.CreateUser(ctx, "alice", "alice-secret")
	require.NoError(t, err)
	readerID, err := ts.roles.CreateRole(ctx, "reader", "")
	require.NoError(t, err)
	require.NoError(t, ts.rbac.AssignRole(ctx, aliceID, readerID))

	resp := ts.do(t, http.MethodPost, "/collections", "admin", "admin-secret",
		`{"name":"documents","dimension":768,"metric":"cosine"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/collections", "alice", "alice-secret",
		`{"name":"other","dimension":64,"metric":"dot"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/collections/0", "alice", "alice-secret", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, ts.rbac.GrantPermission(ctx, readerID, rbac.CollectionScope(0), rbac.PermListCollections))
	resp = ts.do(t, http.MethodGet, "/collections/0", "alice", "alice-secret", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A single-collection grant never satisfies the global listing.
	resp = ts.do(t, http.MethodGet, "/collections", "alice", "alice-secret", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
