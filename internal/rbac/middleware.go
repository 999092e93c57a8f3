package rbac

import (
	"net/http"
)

// DefaultChecker is the policy the route guards and the auth layer share.
var DefaultChecker = NewChecker(nil)

// guard lets a request through when allow accepts it and answers 403
// otherwise. Requests without a role never reach allow.
func guard(allow func(role string, r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !allow(role, r) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return RequireAny(perm)
}

func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(role string, _ *http.Request) bool {
		return DefaultChecker.Any(role, perms...)
	})
}

// RequireOwnerOr admits a learner acting on their own records, such as
// reading their report, and otherwise enforces perm.
func RequireOwnerOr(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return guard(func(role string, r *http.Request) bool {
		return isOwner(r) || DefaultChecker.Has(role, perm)
	})
}
