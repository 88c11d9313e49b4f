package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminChecker resolves the current admin flag from the store, so a revoked
// admin loses access before their token expires.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RequireAdmin must run after JWTAuth.Middleware.
func RequireAdmin(checker AdminChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == uuid.Nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", r)
				return
			}

			ok, err := checker.IsAdmin(r.Context(), userID)
			if err != nil {
				logger.Error("admin lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", r)
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", r)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), IsAdminKey, true)))
		})
	}
}
