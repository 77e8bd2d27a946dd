package middleware

import (
	"net/http"

	"github.com/creatorhub/backend/internal/contextkeys"
	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/handler"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequireAdmin rejects callers whose role is not admin. It reads the identity
// set by Auth, so it must run after it. Denials are logged with the caller.
func RequireAdmin(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(contextkeys.UserRole).(string)
			if role == domain.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			userID, _ := r.Context().Value(contextkeys.UserID).(string)
			log.Warn("admin route denied",
				zap.String("user_id", userID),
				zap.String("role", role),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
			handler.Error(w, domain.Forbidden("admin access required"))
		})
	}
}
