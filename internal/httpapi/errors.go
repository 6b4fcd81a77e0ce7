package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haontuhcmut/lab-services/internal/auth"
	"github.com/haontuhcmut/lab-services/internal/obs"
)

// errorBody is the uniform error shape of the API.
type errorBody struct {
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
	Resolution string `json:"resolution,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, resolution string) {
	writeJSON(w, status, errorBody{Message: message, ErrorCode: code, Resolution: resolution})
}

// writeBearerError is writeError plus the WWW-Authenticate challenge required
// on bearer-credential failures.
func writeBearerError(w http.ResponseWriter, status int, code, message, resolution string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, status, code, message, resolution)
}

// writeAuthError maps an auth-core failure onto its HTTP status and stable
// error code. Infrastructure failures fall through to 500 so "denied" and
// "unavailable" stay distinguishable.
func writeAuthError(w http.ResponseWriter, err error) {
	var status int
	var code, message, resolution string
	bearerHint := false

	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		status, code = http.StatusUnauthorized, "missing_credentials"
		message = "Authorization credentials were not provided"
		resolution = "Provide a bearer token in the Authorization header"
		bearerHint = true
	case errors.Is(err, auth.ErrInvalidToken):
		status, code = http.StatusUnauthorized, "invalid_token"
		message = "Token is invalid or expired"
		resolution = "Please get new token"
		bearerHint = true
	case errors.Is(err, auth.ErrAccessTokenRequired):
		status, code = http.StatusUnauthorized, "access_token_required"
		message = "Please provide a valid access token"
		resolution = "Please get an access token"
		bearerHint = true
	case errors.Is(err, auth.ErrRefreshTokenRequired):
		status, code = http.StatusForbidden, "refresh_token_required"
		message = "Please provide a valid refresh token"
		resolution = "Please get a refresh token"
		bearerHint = true
	case errors.Is(err, auth.ErrAccountNotVerified):
		status, code = http.StatusForbidden, "account_not_verified"
		message = "Account not verified"
		resolution = "Please check your email for verification details"
	case errors.Is(err, auth.ErrInsufficientPermissions):
		status, code = http.StatusForbidden, "insufficient_permissions"
		message = "You do not have enough permissions to perform this action"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
		message = "Incorrect email or password"
		bearerHint = true
	case errors.Is(err, auth.ErrActionTokenExpired):
		status, code = http.StatusBadRequest, "action_token_expired"
		message = "This link has expired"
		resolution = "Please request a new link"
	case errors.Is(err, auth.ErrActionTokenInvalid):
		status, code = http.StatusBadRequest, "action_token_invalid"
		message = "Invalid token"
	case errors.Is(err, auth.ErrEmailTaken):
		status, code = http.StatusForbidden, "user_exists"
		message = "Email already exists"
	case errors.Is(err, auth.ErrUsernameTaken):
		status, code = http.StatusForbidden, "username_exists"
		message = "The chosen username is already in use. Please select a different one."
	case errors.Is(err, auth.ErrPasswordMismatch):
		status, code = http.StatusBadRequest, "password_mismatch"
		message = "Passwords do not match"
	case errors.Is(err, auth.ErrUserNotFound):
		status, code = http.StatusNotFound, "user_not_found"
		message = "User not found"
	default:
		status, code = http.StatusInternalServerError, "server_error"
		message = "Internal server error"
	}

	if status != http.StatusInternalServerError {
		obs.AuthFailure(code)
	}
	if bearerHint {
		writeBearerError(w, status, code, message, resolution)
		return
	}
	writeError(w, status, code, message, resolution)
}
