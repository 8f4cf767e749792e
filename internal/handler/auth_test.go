package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/handler"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/service"
)

type MockCredentials struct {
	Username string
	Password string
	Logins   int

	ReturnUser  *model.User
	ReturnLogin *service.LoginResult
	ReturnErr   error
}

func (m *MockCredentials) CreateUser(_ context.Context, username, password string) (*model.User, error) {
	m.Username, m.Password = username, password
	return m.ReturnUser, m.ReturnErr
}

func (m *MockCredentials) Login(_ context.Context, username, password string) (*service.LoginResult, error) {
	m.Logins++
	m.Username, m.Password = username, password
	return m.ReturnLogin, m.ReturnErr
}

func (m *MockCredentials) GetUser(_ context.Context, id string) (*model.User, error) {
	return m.ReturnUser, m.ReturnErr
}

// fixedLimiter returns the same decision every time.
type fixedLimiter struct {
	decision auth.Decision
	err      error
	keys     []string
}

func (l *fixedLimiter) Allow(_ context.Context, key string) (auth.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

var allowAll = &fixedLimiter{decision: auth.Decision{Allowed: true}}

func authRouter(m *MockCredentials, l auth.Limiter, opts handler.AuthOptions) http.Handler {
	h := handler.NewAuthHandler(m, l, opts, quietLogger())
	r := chi.NewRouter()
	r.Post("/api/setup", h.HandleSetup)
	r.Post("/api/auth/login", h.HandleLogin)
	r.Post("/api/auth/logout", h.HandleLogout)
	r.Get("/api/auth/me", h.HandleMe)
	return r
}

func TestAuthHandler_HandleSetup(t *testing.T) {
	opts := handler.AuthOptions{AllowSetup: true}

	t.Run("creates user", func(t *testing.T) {
		m := &MockCredentials{ReturnUser: &model.User{ID: "u1", Username: "alice"}}

		rr := do(t, authRouter(m, allowAll, opts), http.MethodPost, "/api/setup", `{"username":"alice","password":"s3cret"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.JSONEq(t, `{"message":"User created successfully","username":"alice"}`, rr.Body.String())
		assert.Equal(t, "s3cret", m.Password)
	})

	t.Run("missing password", func(t *testing.T) {
		m := &MockCredentials{}

		rr := do(t, authRouter(m, allowAll, opts), http.MethodPost, "/api/setup", `{"username":"alice"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "password", decodeError(t, rr).Field)
	})

	t.Run("duplicate", func(t *testing.T) {
		m := &MockCredentials{ReturnErr: apperror.Conflict("user already exists")}

		rr := do(t, authRouter(m, allowAll, opts), http.MethodPost, "/api/setup", `{"username":"alice","password":"x"}`)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		m := &MockCredentials{}

		rr := do(t, authRouter(m, allowAll, handler.AuthOptions{}), http.MethodPost, "/api/setup", `{"username":"alice","password":"x"}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, m.Username)
	})
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	opts := handler.AuthOptions{TokenTTL: time.Hour}

	t.Run("sets cookie", func(t *testing.T) {
		m := &MockCredentials{ReturnLogin: &service.LoginResult{User: alice, Token: "tok"}}

		rr := do(t, authRouter(m, allowAll, opts), http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.Equal(t, "tok", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 3600, cookies[0].MaxAge)

		var res service.LoginResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, alice, res.User)
	})

	t.Run("bad credentials", func(t *testing.T) {
		m := &MockCredentials{ReturnErr: apperror.Unauthenticated("invalid username or password")}

		rr := do(t, authRouter(m, allowAll, opts), http.MethodPost, "/api/auth/login", `{"username":"alice","password":"nope"}`)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("rate limited", func(t *testing.T) {
		m := &MockCredentials{}
		l := &fixedLimiter{decision: auth.Decision{Allowed: false, RetryAfter: 30 * time.Second}}

		rr := do(t, authRouter(m, l, opts), http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "30", rr.Header().Get("Retry-After"))
		assert.Zero(t, m.Logins, "password must not be checked")
		require.Len(t, l.keys, 1)
		assert.Contains(t, l.keys[0], "|alice")
	})

	t.Run("limiter key ignores surrounding whitespace", func(t *testing.T) {
		m := &MockCredentials{ReturnLogin: &service.LoginResult{User: alice, Token: "tok"}}
		l := &fixedLimiter{decision: auth.Decision{Allowed: true}}
		router := authRouter(m, l, opts)

		do(t, router, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`)
		do(t, router, http.MethodPost, "/api/auth/login", `{"username":"  alice ","password":"pw"}`)

		require.Len(t, l.keys, 2)
		assert.Equal(t, l.keys[0], l.keys[1])
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		m := &MockCredentials{ReturnLogin: &service.LoginResult{User: alice, Token: "tok"}}
		l := &fixedLimiter{err: errors.New("redis down")}

		rr := do(t, authRouter(m, l, opts), http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, m.Logins)
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	rr := do(t, authRouter(&MockCredentials{}, allowAll, handler.AuthOptions{}), http.MethodPost, "/api/auth/logout", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthHandler_HandleMe(t *testing.T) {
	t.Run("without identity", func(t *testing.T) {
		rr := do(t, authRouter(&MockCredentials{}, allowAll, handler.AuthOptions{}), http.MethodGet, "/api/auth/me", "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("with identity", func(t *testing.T) {
		m := &MockCredentials{ReturnUser: &model.User{ID: "u-alice", Username: "alice"}}
		h := handler.NewAuthHandler(m, allowAll, handler.AuthOptions{}, quietLogger())

		req := newRequestWithIdentity(http.MethodGet, "/api/auth/me", alice)
		rr := serve(h.HandleMe, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "password")
		assert.Contains(t, rr.Body.String(), `"username":"alice"`)
	})
}
