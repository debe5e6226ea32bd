package middlewares

import (
	"context"
	"net/http"

	"authd/internal/helpers"
	"authd/internal/models"
)

// Authenticate requires a valid full access token and stores the claims in
// the request context. Routes that accept pending-confirmation session tokens
// instead carry them in the request body and are mounted without this
// middleware.
func Authenticate(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			accessToken := r.Header.Get("Authorization")
			userClaims, err := helpers.ParseAccessToken(jwtSecret, accessToken)
			if err != nil {
				helpers.RespondWithError(w, 403, []string{"FORBIDDEN"})
				return
			}

			ctx := context.WithValue(r.Context(), models.UserClaimKey{}, userClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// OptionalAuthenticate parses claims when an Authorization header is present
// but lets anonymous requests through. Used by routes that accept either an
// MFA-verified access token or a pending-session token in the body.
func OptionalAuthenticate(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			accessToken := r.Header.Get("Authorization")
			if accessToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			userClaims, err := helpers.ParseAccessToken(jwtSecret, accessToken)
			if err != nil {
				helpers.RespondWithError(w, 403, []string{"FORBIDDEN"})
				return
			}

			ctx := context.WithValue(r.Context(), models.UserClaimKey{}, userClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}
