// Package auth resolves the caller's identity for the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName   = "sb-access-token"
	UserIDHeader = "X-User-ID"
)

var ErrUnauthenticated = errors.New("authentication required")

// User is the identity attached to an authenticated request.
type User struct {
	ID       string
	Email    string
	Username string
}

// Authenticator extracts a User from a request or returns ErrUnauthenticated.
type Authenticator interface {
	Authenticate(r *http.Request) (User, error)
}

type contextKey string

const userContextKey contextKey = "auth_user"

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok && u.ID != ""
}

// JWTAuthenticator verifies HS256 access tokens signed with the project secret.
type JWTAuthenticator struct {
	secret []byte
	leeway time.Duration
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), leeway: 30 * time.Second}
}

type claims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (User, error) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return User{}, ErrUnauthenticated
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return User{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	u := User{ID: c.Subject, Email: c.Email}
	if name, ok := c.UserMetadata["username"].(string); ok {
		u.Username = name
	}
	return u, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HeaderAuthenticator trusts X-User-ID as set by an authenticating proxy.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (User, error) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		return User{}, ErrUnauthenticated
	}
	return User{ID: id}, nil
}

// Require rejects unauthenticated requests with 401 and stores the user in the context.
func Require(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="goalpact"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// SignOut expires the session cookie.
func SignOut(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
