package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type memoryStore struct {
	mu     sync.Mutex
	users  map[int64]User
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[int64]User)}
}

func (m *memoryStore) FindByID(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *memoryStore) FindByLogin(ctx context.Context, login string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == login || strings.EqualFold(user.Email, login) {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []User{}
	for id := int64(1); id <= m.nextID; id++ {
		user, ok := m.users[id]
		if !ok {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, user)
	}
	return out, len(out), nil
}

func (m *memoryStore) Create(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return User{}, ErrDuplicateUsername
		}
		if existing.Email == user.Email {
			return User{}, ErrDuplicateEmail
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) Update(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return User{}, ErrNotFound
	}
	for _, existing := range m.users {
		if existing.ID != user.ID && existing.Email == user.Email {
			return User{}, ErrDuplicateEmail
		}
	}
	user.UpdatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func newTestService() (*Service, *memoryStore) {
	store := newMemoryStore()
	return NewService(store, nil, nil).WithHashCost(bcrypt.MinCost), store
}

func TestCreateHashesPasswordAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{Username: "kasir", Email: "Kasir@Toko.id", Password: "rahasia123"}, 0)
	require.NoError(t, err)
	require.Equal(t, "kasir@toko.id", user.Email)
	require.True(t, user.IsActive)
	require.False(t, user.IsAdmin)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("rahasia123")))

	_, err = svc.Create(ctx, CreateInput{Username: "kasir", Email: "other@toko.id", Password: "rahasia123"}, 0)
	require.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Create(ctx, CreateInput{Username: "baru", Email: "x@toko.id", Password: "short"}, 0)
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestAdminCannotDisableSelf(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	admin, err := svc.Create(ctx, CreateInput{Username: "admin", Email: "admin@toko.id", Password: "rahasia123", IsAdmin: true}, 0)
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateInput{Username: "kasir", Email: "kasir@toko.id", Password: "rahasia123"}, admin.ID)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, admin.ID, admin.ID, false)
	require.ErrorIs(t, err, ErrSelfModification)
	require.ErrorIs(t, svc.Delete(ctx, admin.ID, admin.ID), ErrSelfModification)

	require.NoError(t, svc.Delete(ctx, admin.ID, other.ID))
	reloaded, err := svc.Get(ctx, other.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)
}

func TestUpdateSelfIgnoresPrivilegeFlags(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	user, err := svc.Create(ctx, CreateInput{Username: "kasir", Email: "kasir@toko.id", Password: "rahasia123"}, 0)
	require.NoError(t, err)

	yes := true
	name := "Kasir Satu"
	updated, err := svc.UpdateSelf(ctx, user.ID, UpdateInput{FullName: &name, IsAdmin: &yes})
	require.NoError(t, err)
	require.Equal(t, "Kasir Satu", updated.FullName)
	require.False(t, updated.IsAdmin)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	user, created, err := svc.EnsureAdmin(ctx, "admin", "admin@toko.id", "rahasia123")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, user.IsAdmin)

	again, created, err := svc.EnsureAdmin(ctx, "admin", "admin@toko.id", "rahasia123")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, user.ID, again.ID)
	require.Len(t, store.users, 1)
}

func TestHandlerRequiresAdminForListing(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInput{Username: "kasir", Email: "kasir@toko.id", Password: "rahasia123"}, 0)
	require.NoError(t, err)
	router := chi.NewRouter()
	router.Route("/users", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/users/", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, IsActive: true}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, IsActive: true}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"kasir"`)
	require.NotContains(t, rec.Body.String(), "rahasia")
}

func TestHandlerStatusPatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	admin, err := svc.Create(ctx, CreateInput{Username: "admin", Email: "admin@toko.id", Password: "rahasia123", IsAdmin: true}, 0)
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateInput{Username: "kasir", Email: "kasir@toko.id", Password: "rahasia123"}, 0)
	require.NoError(t, err)
	router := chi.NewRouter()
	router.Route("/users", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)
	principal := shared.Principal{UserID: admin.ID, IsActive: true, IsAdmin: true}

	req := httptest.NewRequest(http.MethodPatch, "/users/2/status", strings.NewReader(`{"is_active":false}`))
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	reloaded, err := svc.Get(ctx, other.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)

	req = httptest.NewRequest(http.MethodPatch, "/users/1/status", strings.NewReader(`{"is_active":false}`))
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
