package httpapi

import (
	"errors"
	"net/http"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/go-chi/render"
)

const (
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeInvalidToken       = "invalid_token"
	codeTokenExpired       = "token_expired"
	codeTokenRevoked       = "token_revoked"
	codeEmailTaken         = "email_taken"
	codeNotFound           = "not_found"
	codeUnavailable        = "service_unavailable"
	codeInternal           = "internal_error"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// classify maps a service error onto an HTTP status and error code.
// Anything unrecognised is a 500; storage failures are 503.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, codeTokenExpired, "token expired"
	case errors.Is(err, common.ErrTokenRevoked):
		return http.StatusUnauthorized, codeTokenRevoked, "token revoked"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, codeInvalidToken, "invalid token"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, codeEmailTaken, "email already registered"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, codeNotFound, "not found"
	case errors.Is(err, common.ErrPersistence):
		return http.StatusServiceUnavailable, codeUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			"request_id", RequestID(r.Context()), "path", r.URL.Path, "err", err)
	}
	writeError(w, r, status, code, msg)
}
