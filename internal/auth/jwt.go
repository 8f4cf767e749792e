package auth

// SESSION FLOW:
//  1. POST /api/auth/login checks the username and password against the
//     stored bcrypt hash (see PasswordService).
//  2. On success the server signs a token with Generate and sets it as an
//     HttpOnly cookie. The same token is returned in the body for clients that
//     prefer an Authorization header.
//  3. Every later request passes through RequireAuth, which reads the cookie
//     or the Bearer header, calls Validate, and puts the model.Identity into
//     the request context.
//  4. Handlers read the identity with IdentityFromContext and scope every
//     query to its UserID.
//
// WHY A SIGNED TOKEN?
// Validating a session needs no table lookup: the user id, username and
// expiry are inside the token and the HMAC signature proves the server wrote
// them. The price is that a token cannot be revoked early. Logout removes the
// cookie; the token itself stays valid until exp, which is why the TTL is
// configurable.
//
// TOKEN LAYOUT (three base64url parts joined by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- header:    {"alg":"HS256","typ":"JWT"}
//	- payload:   {"usr":"alice","sub":"<user id>","iss":"knowledge-library","iat":...,"exp":...}
//	- signature: HMAC-SHA256(header + "." + payload, secret)

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/knowledge-library/internal/model"
)

const (
	issuer     = "knowledge-library"
	defaultTTL = 24 * time.Hour
	minSecret  = 16
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService issues and validates HS256 session tokens carrying the caller identity.
//
// HS256 is symmetric: the one secret both signs and verifies, so it must stay
// on the server. Generate a fresh one per deployment, for example with
// openssl rand -hex 32.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService requires a secret of at least 16 characters. A non-positive
// ttl falls back to 24h.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecret {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecret)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the token payload. The user id travels in the registered "sub"
// claim; the username rides along in "usr" so /api/auth/me and the request
// logs do not need a lookup.
type claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Generate signs a token for id that expires after the configured TTL.
func (s *TokenService) Generate(id model.Identity) (string, error) {
	return s.GenerateWithDuration(id, s.ttl)
}

// GenerateWithDuration signs a token with an explicit lifetime. Tests use a
// negative duration to get a token that is already expired.
func (s *TokenService) GenerateWithDuration(id model.Identity, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, issuer and expiry and returns the embedded identity.
//
// VALIDATION RULES:
//   - the alg header must be HS256. Accepting whatever the token names would
//     let a forged "alg":"none" token through.
//   - iss must be knowledge-library
//   - exp must be present and in the future. An expired token maps to
//     ErrTokenExpired so callers can tell it apart from a forged one.
//   - sub must be non-empty
func (s *TokenService) Validate(tokenStr string) (model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return model.Identity{}, ErrTokenInvalid
	}

	return model.Identity{UserID: c.Subject, Username: c.Username}, nil
}
