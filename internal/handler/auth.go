package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/service"
)

// Credentials is the slice of service.CredentialService the auth routes use.
type Credentials interface {
	CreateUser(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler serves the one-time setup, password login and session routes.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSetup  → create a user (can be switched off once the account exists)
//   - HandleLogin  → verify a username/password pair and issue the session cookie
//   - HandleLogout → clear the session cookie
//   - HandleMe     → return the logged-in user
//
// Login attempts go through the limiter before any password is compared, keyed
// by client address and username.
type AuthHandler struct {
	credentials  Credentials
	limiter      auth.Limiter
	validate     *validator.Validate
	tokenTTL     time.Duration
	cookieSecure bool
	allowSetup   bool
	logger       *slog.Logger
}

// AuthOptions carries the cookie and setup settings from configuration.
type AuthOptions struct {
	TokenTTL     time.Duration
	CookieSecure bool
	AllowSetup   bool
}

func NewAuthHandler(credentials Credentials, limiter auth.Limiter, opts AuthOptions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		credentials:  credentials,
		limiter:      limiter,
		validate:     newValidator(),
		tokenTTL:     opts.TokenTTL,
		cookieSecure: opts.CookieSecure,
		allowSetup:   opts.AllowSetup,
		logger:       logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// HandleSetup creates a user.
//
// HTTP: POST /api/setup
// REQUEST BODY: {"username": "alice", "password": "..."}
// RESPONSE: 201 {"message": "User created successfully", "username": "alice"}
func (h *AuthHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	if !h.allowSetup {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "setup is disabled"})
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.credentials.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "User created successfully",
		"username": user.Username,
	})
}

// HandleLogin verifies credentials and sets the session cookie. The token is
// also returned in the body for clients that prefer the Authorization header.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	key := clientIP(r) + "|" + service.NormalizeUsername(req.Username)
	decision, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		// a broken limiter must not lock everyone out
		h.logger.Error("login limiter failed, allowing attempt", slog.String("error", err.Error()))
	} else if !decision.Allowed {
		h.logger.Warn("login rate limited",
			slog.String("ip", clientIP(r)),
			slog.String("username", req.Username),
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate_limited",
			Message: "too many login attempts, try again later",
		})
		return
	}

	res, err := h.credentials.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the session cookie. The JWT itself stays valid until it
// expires; without the cookie the browser simply stops sending it.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the current user.
//
// HTTP: GET /api/auth/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.credentials.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already replaced it with the forwarded address when proxies are trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// identity pulls the caller out of the request context, writing a 401 when
// the route was mounted without RequireAuth.
func identity(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (model.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperror.Unauthenticated("valid authentication required"))
		return model.Identity{}, false
	}
	return id, true
}
