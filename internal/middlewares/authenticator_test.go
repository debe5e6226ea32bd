package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"authd/internal/helpers"
	"authd/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authTestJWTSecret = "test-secret-key-for-middleware-testing"

func claimsEcho(t *testing.T, captured *models.UserClaims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := helpers.GetUserClaims(r.Context())
		if err == nil {
			*captured = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	user := &models.User{ID: uuid.New(), Username: "alice", Role: models.RoleUser}

	t.Run("should store the claims of a valid access token", func(t *testing.T) {
		token, err := helpers.NewAccessToken(authTestJWTSecret, user, true)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/mfa", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()

		var captured models.UserClaims
		Authenticate(authTestJWTSecret)(claimsEcho(t, &captured)).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, user.ID, captured.UserID)
		assert.True(t, captured.MFA)
	})

	t.Run("should reject a missing or malformed header", func(t *testing.T) {
		for _, header := range []string{"", "garbage", "Bearer not-a-token"} {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/mfa", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			recorder := httptest.NewRecorder()

			var nextCalled bool
			Authenticate(authTestJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
			})).ServeHTTP(recorder, req)

			assert.Equal(t, http.StatusForbidden, recorder.Code, header)
			assert.False(t, nextCalled, header)
		}
	})

	t.Run("should reject a refresh token", func(t *testing.T) {
		token, err := helpers.NewRefreshToken(authTestJWTSecret, user, false)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/mfa", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()

		Authenticate(authTestJWTSecret)(claimsEcho(t, &models.UserClaims{})).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}

func TestOptionalAuthenticate(t *testing.T) {
	user := &models.User{ID: uuid.New(), Username: "alice", Role: models.RoleUser}

	t.Run("should let anonymous requests through without claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/mfa", nil)
		recorder := httptest.NewRecorder()

		var captured models.UserClaims
		OptionalAuthenticate(authTestJWTSecret)(claimsEcho(t, &captured)).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, uuid.Nil, captured.UserID)
	})

	t.Run("should parse claims when a token is presented", func(t *testing.T) {
		token, err := helpers.NewAccessToken(authTestJWTSecret, user, true)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/mfa", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()

		var captured models.UserClaims
		OptionalAuthenticate(authTestJWTSecret)(claimsEcho(t, &captured)).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, user.ID, captured.UserID)
	})

	t.Run("should still reject a presented but invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/mfa", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		recorder := httptest.NewRecorder()

		OptionalAuthenticate(authTestJWTSecret)(claimsEcho(t, &models.UserClaims{})).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}
