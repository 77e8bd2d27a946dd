package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/creatorhub/backend/internal/contextkeys"
	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("failed to encode JSON response", zap.Error(err))
		}
	}
}

// Error writes an error JSON response, using AppError status codes when available.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			zap.L().Error(appErr.Message, zap.Error(appErr.Err))
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.Message})
		return
	}
	zap.L().Error("unhandled error", zap.Error(err))
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrBadRequest("request body is empty")
		}
		// Well-formed JSON carrying an unusable amount is a validation failure.
		if errors.Is(err, money.ErrInvalid) || errors.Is(err, money.ErrPrecision) || errors.Is(err, money.ErrOverflow) {
			return domain.Validation("amounts must be numbers with at most two decimals")
		}
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// identity returns the caller set by the Auth middleware. It is zero on
// public routes.
func identity(r *http.Request) domain.Identity {
	userID, _ := r.Context().Value(contextkeys.UserID).(string)
	role, _ := r.Context().Value(contextkeys.UserRole).(string)
	return domain.Identity{UserID: userID, Role: role}
}
