// Package handlers adapts service methods to HTTP. Services stay plain
// functions over data; everything HTTP-shaped (status codes, JSON envelopes,
// claim extraction) lives here.
package handlers

import (
	"context"
	"net/http"

	apierrors "authd/internal/errors"
	"authd/internal/helpers"
	"authd/internal/models"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceFunc is the shape of a service operation: request context for
// storage deadlines, a request-scoped logger, the caller's claims (zero value
// on public routes), positional URL ids, and the validated body.
type ServiceFunc[B any, R any] func(
	ctx context.Context,
	logger *zap.Logger,
	claims models.UserClaims,
	ids uuid.UUIDs,
	body B,
) (R, error)

func requestLogger(r *http.Request) *zap.Logger {
	return zap.L().With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.Status >= 500 {
		logger.Error("Request failed", zap.Error(err))
	}
	helpers.RespondWithError(w, apiErr.Status, []string{apiErr.Code})
}

func run[B any, R any](w http.ResponseWriter, r *http.Request, fn ServiceFunc[B, R]) (R, bool) {
	var zero R

	logger := requestLogger(r)

	claims, _ := r.Context().Value(models.UserClaimKey{}).(models.UserClaims)

	ids, ok := helpers.ParseUUIDs(w, r)
	if !ok {
		return zero, false
	}

	body, _ := r.Context().Value(models.BodyKey{}).(B)

	result, err := fn(r.Context(), logger, claims, ids, body)
	if err != nil {
		respondError(w, logger, err)
		return zero, false
	}
	return result, true
}

// CreateHandler responds 200 with the operation result as JSON.
func CreateHandler[B any, R any](fn ServiceFunc[B, R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := run(w, r, fn)
		if !ok {
			return
		}
		helpers.RespondWithJSON(w, 200, result)
	}
}

// BodyHandler is for operations with no response payload; responds 204.
func BodyHandler[B any](
	fn func(context.Context, *zap.Logger, models.UserClaims, uuid.UUIDs, B) error,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wrapped := func(
			ctx context.Context, logger *zap.Logger, claims models.UserClaims, ids uuid.UUIDs, body B,
		) (struct{}, error) {
			return struct{}{}, fn(ctx, logger, claims, ids, body)
		}
		if _, ok := run(w, r, wrapped); !ok {
			return
		}
		helpers.RespondWithJSON(w, 204, nil)
	}
}

// GetOneHandler is for body-less reads; responds 200 with JSON.
func GetOneHandler[R any](
	fn func(context.Context, *zap.Logger, models.UserClaims, uuid.UUIDs) (R, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wrapped := func(
			ctx context.Context, logger *zap.Logger, claims models.UserClaims, ids uuid.UUIDs, _ struct{},
		) (R, error) {
			return fn(ctx, logger, claims, ids)
		}
		result, ok := run(w, r, wrapped)
		if !ok {
			return
		}
		helpers.RespondWithJSON(w, 200, result)
	}
}
