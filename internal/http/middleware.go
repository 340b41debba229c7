package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/photopixel/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionHeader = "X-Session-ID"
	sessionPrefix = "session:"
)

type identityKey struct{}

// Identity is the owner a request acts for. Anonymous identities come from a
// session header and may only use buy-now.
type Identity struct {
	OwnerID       string
	Authenticated bool
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.OwnerID != ""
}

// IdentityMiddleware resolves the owner from an HS256 bearer token (sub claim)
// or, failing that, from the session header. A bearer token that does not
// verify is rejected outright.
func IdentityMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); auth != "" {
				ownerID, err := parseBearer(auth, secret)
				if err != nil {
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{OwnerID: ownerID, Authenticated: true})))
				return
			}

			if session := strings.TrimSpace(r.Header.Get(SessionHeader)); session != "" {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{OwnerID: sessionPrefix + session})))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBearer(header string, secret []byte) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("authorization header is not a bearer token")
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject: %w", err)
	}
	if sub == "" || strings.HasPrefix(sub, sessionPrefix) {
		return "", errors.New("token has no usable subject")
	}
	return sub, nil
}

// IssueToken signs an HS256 token for ownerID. Used by tests and local tooling.
func IssueToken(secret []byte, ownerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// requireOwner writes 401 and returns false when the request carries no
// usable identity. Anonymous sessions pass only when allowAnonymous is set.
func requireOwner(w http.ResponseWriter, r *http.Request, allowAnonymous bool) (Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return Identity{}, false
	}
	if !id.Authenticated && !allowAnonymous {
		respondError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return Identity{}, false
	}
	return id, true
}

// RequestLogger logs one line per request with status and duration.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), log).Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
