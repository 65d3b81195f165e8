package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/novahr/nova-authz/internal/platform/httpx"
	"github.com/novahr/nova-authz/internal/shared"
)

// Authorizer is the slice of the engine the gate needs.
type Authorizer interface {
	HasPermission(ctx context.Context, userID int64, permission string) (CheckResult, error)
}

// Middleware wires permission-gate helpers for HTTP handlers. A missing
// subject maps to 401 and a denial to 403. Store failures surface as 500
// rather than a denial.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Require ensures the current subject holds the given permission.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return m.RequireAny(permission)
}

// RequireAny ensures the current subject holds at least one of the required
// permissions. With no permissions listed the gate is a pass-through.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sub := shared.SubjectFromContext(r.Context())
			if sub == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			for _, perm := range perms {
				res, err := m.Authorizer.HasPermission(r.Context(), sub.UserID, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("permission gate", slog.Int64("user_id", sub.UserID), slog.String("permission", perm), slog.Any("error", err))
					}
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				if res.Authorized {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
		})
	}
}
