package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"authd/internal/models"

	"github.com/stretchr/testify/assert"
)

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestValidate(t *testing.T) {
	t.Run("should store the decoded body in the request context", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		var captured models.AuthLoginBody
		handler := Validate[models.AuthLoginBody](http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = r.Context().Value(models.BodyKey{}).(models.AuthLoginBody)
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(recorder, postJSON(`{"username":"alice","password":"correct horse battery"}`))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "alice", captured.Username)
		assert.Equal(t, "correct horse battery", captured.Password)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		handler := Validate[models.AuthLoginBody](http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(recorder, postJSON(`{"username":`))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("should reject unknown fields", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		handler := Validate[models.AuthLoginBody](http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(recorder, postJSON(`{"username":"alice","password":"pw","admin":true}`))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("should reject bodies that fail validation", func(t *testing.T) {
		for name, body := range map[string]string{
			"missing password": `{"username":"alice"}`,
			"empty username":   `{"username":"","password":"pw"}`,
			"oversized code":   `{"username":"alice","password":"pw","mfa_code":"` + strings.Repeat("1", 33) + `"}`,
		} {
			recorder := httptest.NewRecorder()

			var nextCalled bool
			handler := Validate[models.AuthLoginBody](http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
			}))
			handler.ServeHTTP(recorder, postJSON(body))

			assert.Equal(t, http.StatusBadRequest, recorder.Code, name)
			assert.False(t, nextCalled, name)
		}
	})

	t.Run("should enforce the new password confirmation match", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		handler := Validate[models.PasswordChangeBody](http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(recorder, postJSON(
			`{"current_password":"old","new_password":"a brand new secret","confirm_password":"different"}`,
		))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}
