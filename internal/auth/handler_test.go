package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

type stubDirectory struct {
	users map[int64]users.User
}

func (s *stubDirectory) FindByLogin(ctx context.Context, login string) (users.User, error) {
	for _, u := range s.users {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (s *stubDirectory) Get(ctx context.Context, id int64) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (s *stubDirectory) Create(ctx context.Context, in users.CreateInput, actorID int64) (users.User, error) {
	for _, u := range s.users {
		if u.Username == in.Username {
			return users.User{}, users.ErrDuplicateUsername
		}
	}
	id := int64(len(s.users) + 1)
	u := users.User{ID: id, Username: in.Username, Email: in.Email, IsActive: true, IsAdmin: in.IsAdmin}
	s.users[id] = u
	return u, nil
}

func newFixture(t *testing.T) (*auth.Service, *stubDirectory, *auth.TokenIssuer) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	require.NoError(t, err)
	dir := &stubDirectory{users: map[int64]users.User{
		1: {ID: 1, Username: "admin", Email: "admin@toko.id", PasswordHash: string(hash), IsActive: true, IsAdmin: true},
		2: {ID: 2, Username: "nonaktif", Email: "off@toko.id", PasswordHash: string(hash), IsActive: false},
	}}
	tokens := auth.NewTokenIssuer("test-secret", "odyssey-pos", 30*time.Minute)
	return auth.NewService(dir, tokens), dir, tokens
}

func newRouter(svc *auth.Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(nil, svc).MountRoutes)
	r.With(auth.NewMiddleware(svc, nil).Authenticate).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, _ := shared.PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.Username))
	})
	return r
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", "odyssey-pos", time.Minute)
	token, err := tokens.Issue(users.User{ID: 5, Username: "kasir"})
	require.NoError(t, err)
	require.Equal(t, "bearer", token.TokenType)
	require.EqualValues(t, 60, token.ExpiresIn)

	claims, err := tokens.Parse(token.AccessToken)
	require.NoError(t, err)
	require.EqualValues(t, 5, claims.UserID)
	require.Equal(t, "kasir", claims.Username)
	require.NotEmpty(t, claims.ID)

	other := auth.NewTokenIssuer("other-secret", "odyssey-pos", time.Minute)
	_, err = other.Parse(token.AccessToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	foreign := auth.NewTokenIssuer("test-secret", "someone-else", time.Minute)
	_, err = foreign.Parse(token.AccessToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "odyssey-pos",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: 1,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = auth.NewTokenIssuer("test-secret", "odyssey-pos", time.Minute).Parse(raw)
	require.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "admin@toko.id", "rahasia123")
	require.NoError(t, err)
	require.Equal(t, "admin", user.Username)

	_, err = svc.Authenticate(ctx, "admin", "salah")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nonaktif", "rahasia123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "ghost", "rahasia123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginJSONAndForm(t *testing.T) {
	svc, _, tokens := newFixture(t)
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"rahasia123"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var token auth.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	_, err := tokens.Parse(token.AccessToken)
	require.NoError(t, err)

	form := url.Values{"username": {"admin"}, "password": {"salah123"}}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestRegisterNeverGrantsAdmin(t *testing.T) {
	svc, dir, _ := newFixture(t)
	router := newRouter(svc)

	body := `{"username":"kasir","email":"kasir@toko.id","password":"rahasia123"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.False(t, dir.users[3].IsAdmin)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"username":"x"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMiddleware(t *testing.T) {
	svc, dir, tokens := newFixture(t)
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	token, err := tokens.Issue(dir.users[1])
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", rec.Body.String())

	admin := dir.users[1]
	admin.IsActive = false
	dir.users[1] = admin
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	svc, _, _ := newFixture(t)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
