package rbac

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Trusted gateway headers carrying the authenticated identity.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRoles = "X-Actor-Roles"
)

// Authenticate resolves the actor from gateway headers and stores it in the
// request context. Requests without an actor id are rejected.
func Authenticate(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if id == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			roles, err := ParseRoleSet(r.Header.Get(HeaderActorRoles))
			if err != nil {
				if logger != nil {
					logger.Warn("rbac reject actor roles", slog.String("actor", id), slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			actor := Actor{
				ID:        id,
				Roles:     roles,
				IP:        clientIP(r.RemoteAddr),
				UserAgent: r.UserAgent(),
				RequestID: middleware.GetReqID(r.Context()),
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// RequireAny ensures the current actor holds at least one of the capabilities.
func (m Middleware) RequireAny(capabilities ...catalog.Capability) func(http.Handler) http.Handler {
	return m.require(capabilities, false)
}

// RequireAll ensures the current actor holds every capability.
func (m Middleware) RequireAll(capabilities ...catalog.Capability) func(http.Handler) http.Handler {
	return m.require(capabilities, true)
}

func (m Middleware) require(capabilities []catalog.Capability, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(capabilities) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			granted := m.Evaluator.EffectiveCapabilities(actor.Roles)
			if hasCapabilities(granted, capabilities, all) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied", slog.String("actor", actor.ID), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, shared.ErrPermissionDenied)
		})
	}
}

func hasCapabilities(granted catalog.Set, required []catalog.Capability, all bool) bool {
	for _, c := range required {
		has := granted.Has(c)
		if all && !has {
			return false
		}
		if !all && has {
			return true
		}
	}
	return all
}
