package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

// ProvideRoleScope attaches the acting role and scope to every request.
func ProvideRoleScope(rc rolescope.Context) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(rolescope.WithContext(r.Context(), rc)))
		})
	}
}
