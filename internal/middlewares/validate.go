package middlewares

import (
	"context"
	"encoding/json"
	"net/http"

	"authd/internal/helpers"
	"authd/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate decodes and validates the JSON request body as T and stores it in
// the request context for the handler layer.
func Validate[T any](next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body T

		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			helpers.RespondWithError(w, 400, []string{"BAD_REQUEST"})
			return
		}

		if err := validate.Struct(body); err != nil {
			helpers.RespondWithError(w, 400, []string{"VALIDATION_FAILED"})
			return
		}

		ctx := context.WithValue(r.Context(), models.BodyKey{}, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
