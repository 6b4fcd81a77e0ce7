package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/haontuhcmut/lab-services/internal/audit"
	"github.com/haontuhcmut/lab-services/internal/auth"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	if msg := validateSignup(in); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg, "")
		return
	}

	user, err := a.auth.Register(r.Context(), in)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{"user_id": user.ID, "email": user.Email})

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created! Check email to verify your account",
		"user":    user,
	})
}

func validateSignup(in auth.RegisterInput) string {
	switch {
	case strings.TrimSpace(in.Email) == "":
		return "email is required"
	case strings.TrimSpace(in.Username) == "":
		return "username is required"
	case len(in.Username) > 32:
		return "username must be at most 32 characters"
	case len(in.Email) > 125:
		return "email must be at most 125 characters"
	case len(in.Password) < 6:
		return "password must be at least 6 characters"
	case len(in.FirstName) > 25 || len(in.LastName) > 25:
		return "names must be at most 25 characters"
	}
	return ""
}

func (a *API) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.VerifyAccount(r.Context(), r.PathValue("token"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account.verified", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Account verified successfully!"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Login successfully!",
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user": map[string]any{
			"email": user.Email,
			"uid":   user.ID,
		},
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	access, err := a.auth.Refresh(r.Context(), claims)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": access})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	user, err := a.auth.CurrentUser(r.Context(), claims)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.auth.Logout(r.Context(), claims); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"jti": claims.ID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully!"})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required", "")
		return
	}
	if err := a.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Please check your email for instructions to reset your password",
	})
}

type passwordResetConfirm struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_new_password"`
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	if err := a.auth.ResetPassword(r.Context(), r.PathValue("token"), req.NewPassword, req.ConfirmPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successfully!"})
}
