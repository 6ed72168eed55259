package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rizaleow/ovpn-manager/pkg/api"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	applogger "github.com/rizaleow/ovpn-manager/pkg/logger"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusOK, api.Response[T]{
		Success: true,
		Data:    data,
	})
}

// WriteCreated writes a successful JSON response with status 201.
func WriteCreated[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusCreated, api.Response[T]{
		Success: true,
		Data:    data,
	})
}

// WriteErrorResponse translates typed errors into HTTP responses:
// validation to 400, not found to 404, conflict to 409, everything
// else to 500 with the underlying message attached.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := GetLogger(ctx)
	requestID := applogger.GetRequestID(ctx)

	logger.ErrorCtx(ctx, "request failed", err)

	statusCode, code, message := mapError(err)

	_ = WriteJSON(w, statusCode, api.Response[any]{
		Success: false,
		Error: &api.ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

func mapError(err error) (int, string, string) {
	var (
		validationErr *apperrors.ValidationError
		notFoundErr   *apperrors.NotFoundError
		conflictErr   *apperrors.ConflictError
		fenceErr      *apperrors.RevocationFenceError
		serviceErr    *apperrors.ServiceError
		commandErr    *apperrors.CommandError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_error", validationErr.Error()
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found", notFoundErr.Error()
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "conflict", conflictErr.Error()
	case errors.As(err, &fenceErr):
		return http.StatusInternalServerError, "revocation_unfenced", fenceErr.Error()
	case errors.As(err, &serviceErr):
		return http.StatusInternalServerError, "service_error", serviceErr.Error()
	case errors.As(err, &commandErr):
		return http.StatusInternalServerError, "command_error", commandErr.Error()
	default:
		return http.StatusInternalServerError, "internal_error",
			fmt.Sprintf("an internal error occurred: %v", err)
	}
}

// ParseJSONRequest decodes a JSON request body, rejecting unknown
// fields.
func ParseJSONRequest(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("body", "invalid JSON request body: "+err.Error())
	}
	return nil
}
