package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/shared"
)

// Directory resolves a user ID to the identity fields the resolver reads.
type Directory interface {
	IdentityByUserID(ctx context.Context, userID int64) (Identity, error)
}

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity placed by the middleware. The
// zero Identity is returned for unauthenticated requests.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}

// Middleware wires permission checks into HTTP handlers.
type Middleware struct {
	Resolver  *Resolver
	Directory Directory
	Logger    *slog.Logger
}

// Require ensures the current user is granted the feature before the
// request proceeds. Unauthenticated requests and unknown users are denied.
func (m Middleware) Require(featureKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := m.identity(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Resolver.Check(r.Context(), id, featureKey)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.String("feature", featureKey), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireAny ensures the current user holds at least one of the features.
func (m Middleware) RequireAny(featureKeys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(featureKeys) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := m.identity(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, key := range featureKeys {
				granted, err := m.Resolver.Check(r.Context(), id, key)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("permission check", slog.String("feature", key), slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if granted {
					next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// Authenticate resolves the caller's identity and stores it in context
// without requiring any particular feature. Routes that filter per item
// (metrics, Alfred tools) use this and gate inside the service.
func (m Middleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := m.identity(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireSuper restricts the route to the super role.
func (m Middleware) RequireSuper() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := m.identity(r)
			if !ok || !id.IsSuper() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

func (m Middleware) identity(r *http.Request) (Identity, bool) {
	if id := IdentityFromContext(r.Context()); !id.IsZero() {
		return id, true
	}
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		return Identity{}, false
	}
	id, err := m.Directory.IdentityByUserID(r.Context(), userID)
	if err != nil {
		if m.Logger != nil && !errors.Is(err, httpx.ErrNotFound) {
			m.Logger.Error("resolve identity", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return Identity{}, false
	}
	return id, true
}
