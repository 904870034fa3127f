package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxloop/feedback-platform/internal/tenancy"
)

// AccountContext lifts the accountID path parameter into the request context
// so downstream code resolves the tenant the same way everywhere.
func AccountContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")
		if accountID == "" {
			http.Error(w, "account id required", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithAccountID(r.Context(), accountID)))
	})
}
