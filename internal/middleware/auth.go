package middleware

import (
	"net/http"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/utils"

	"go.uber.org/zap"
)

// Auth resolves the bearer token into an auth.Actor on the request context.
// Requests without a token pass through anonymously; handlers decide whether
// an actor is required. A token that is present but invalid is rejected.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := auth.ParseActor(tokenStr, secret)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("rejected access token",
					zap.String("layer", "middleware"),
					zap.Error(err),
				)
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithActor(r.Context(), actor)
			ctx = logger.WithFields(ctx,
				zap.String("actor_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Internal marks requests carrying the shared service secret so the limiter
// can give them the internal tier.
func Internal(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && r.Header.Get("X-Service-Auth") == secret {
				r = r.WithContext(utils.WithInternalRequest(r.Context()))
			}
			next.ServeHTTP(w, r)
		})
	}
}
