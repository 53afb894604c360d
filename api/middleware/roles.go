package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// RequireRole admits an authenticated caller whose role is one of roles.
// A request without a principal is unauthenticated (401); a principal with
// another role is forbidden (403).
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	denied := pkgerrors.New(pkgerrors.CodeForbidden, "requires role "+strings.Join(names, " or "))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := PrincipalFromContext(r.Context())
			if caller.UserID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			role, err := enums.ParseRole(caller.Role)
			if err != nil || !slices.Contains(roles, role) {
				responses.WriteError(r.Context(), logg, w, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
