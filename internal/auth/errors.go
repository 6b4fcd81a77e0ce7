package auth

import "errors"

// Terminal, user-visible failures of the auth core. The HTTP layer maps each
// one onto a stable error_code; store-connectivity failures are deliberately
// not in this list and propagate as plain errors.
var (
	ErrMissingCredentials      = errors.New("auth: missing credentials")
	ErrInvalidToken            = errors.New("auth: invalid token")
	ErrAccessTokenRequired     = errors.New("auth: access token required")
	ErrRefreshTokenRequired    = errors.New("auth: refresh token required")
	ErrAccountNotVerified      = errors.New("auth: account not verified")
	ErrInsufficientPermissions = errors.New("auth: insufficient permissions")
	ErrInvalidCredentials      = errors.New("auth: invalid credentials")
	ErrActionTokenExpired      = errors.New("auth: action token expired")
	ErrActionTokenInvalid      = errors.New("auth: action token invalid")
	ErrEmailTaken              = errors.New("auth: email already exists")
	ErrUsernameTaken           = errors.New("auth: username already exists")
	ErrPasswordMismatch        = errors.New("auth: passwords do not match")
	ErrUserNotFound            = errors.New("auth: user not found")
)
