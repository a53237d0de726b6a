package httpapi

import (
	"net/http"

	"authcore.dev/internal/audit"
	"authcore.dev/internal/auth"
	"authcore.dev/internal/mail"
	"authcore.dev/internal/obs"
)

// resetRequestedMessage is returned whether or not the email matched a user,
// so the endpoint cannot be used to probe for accounts.
const resetRequestedMessage = "If the email exists, a password reset link has been sent"

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	TenantDomain string `json:"tenant_domain"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	TenantDomain string `json:"tenant_domain"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type oauthRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	TenantDomain string `json:"tenant_domain"`
}

type resetRequestRequest struct {
	Email        string `json:"email"`
	TenantDomain string `json:"tenant_domain"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		TenantDomain: req.TenantDomain,
		IP:           clientIP(r),
	})
	if err != nil {
		obs.ObserveAuthAttempt("register", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveAuthAttempt("register", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id": result.User.ID,
		"email":   result.User.Email,
		"tenant":  result.User.TenantDomain,
	})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Login(r.Context(), auth.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		TenantDomain: req.TenantDomain,
		IP:           clientIP(r),
	})
	if err != nil {
		obs.ObserveAuthAttempt("login", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveAuthAttempt("login", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.login", map[string]any{
		"user_id": result.User.ID,
		"tenant":  result.User.TenantDomain,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		obs.ObserveAuthAttempt("refresh", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveAuthAttempt("refresh", "success")
	_ = audit.LogEvent(r.Context(), "auth.token.rotated", map[string]any{
		"user_id": result.User.ID,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.Revoke(r.Context(), req.RefreshToken, clientIP(r)); err != nil {
		obs.ObserveAuthAttempt("logout", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveAuthAttempt("logout", "success")
	_ = audit.LogEvent(r.Context(), "auth.token.revoked", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req oauthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.OAuthLogin(r.Context(), auth.OAuthInput{
		Email:        req.Email,
		Name:         req.Name,
		Provider:     req.Provider,
		TenantDomain: req.TenantDomain,
		IP:           clientIP(r),
	})
	if err != nil {
		obs.ObserveAuthAttempt("oauth", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveAuthAttempt("oauth", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.oauth_login", map[string]any{
		"user_id":  result.User.ID,
		"provider": req.Provider,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            claims.Subject,
		"email":         claims.Email,
		"name":          claims.Name,
		"tenant_id":     claims.TenantID,
		"tenant_domain": claims.TenantDomain,
		"roles":         claims.Roles,
		"permissions":   claims.Permissions,
	})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, found, err := a.svc.RequestPasswordReset(r.Context(), req.Email, req.TenantDomain)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password reset failed")
		return
	}
	if found && a.mailer != nil {
		subject, body := mail.PasswordReset(a.baseURL, req.Email, token, req.TenantDomain)
		if err := a.mailer.Send(r.Context(), req.Email, subject, body); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn", "msg": "reset mail dispatch failed",
				"error": err.Error(), "request_id": RequestIDFromContext(r.Context()),
			})
		}
	}
	_ = audit.LogEvent(r.Context(), "auth.password.reset_requested", map[string]any{
		"tenant": req.TenantDomain,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": resetRequestedMessage})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := a.svc.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password reset failed")
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid or expired reset token")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.reset_confirmed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}
