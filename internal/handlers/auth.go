package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/wazgo/internal/services"
	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// LoginServiceInterface defines the login state machine used by AuthHandler
type LoginServiceInterface interface {
	Login(ctx context.Context, sess *session.Session, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, sess *session.Session) error
}

// PasswordServiceInterface defines the password change flow
type PasswordServiceInterface interface {
	RequestChange(ctx context.Context, sess *session.Session, currentPassword, newPassword, confirmPassword string) (services.PasswordChangeOutcome, error)
}

// CSRFTokenIssuer hands out the session's synchronizer token
type CSRFTokenIssuer interface {
	EnsureCSRFToken(ctx context.Context, s *session.Session) (string, error)
}

// AuthHandler handles login, logout, identity and password change requests
type AuthHandler struct {
	login    LoginServiceInterface
	password PasswordServiceInterface
	csrf     CSRFTokenIssuer
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, password PasswordServiceInterface, csrf CSRFTokenIssuer) *AuthHandler {
	return &AuthHandler{login: login, password: password, csrf: csrf}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"required,max=1024"`
}

// Response DTOs

// CSRFResponse carries the token to echo in the X-CSRF-Token header
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// IdentityResponse describes the signed-in admin
type IdentityResponse struct {
	AccountID             string `json:"account_id"`
	Email                 string `json:"email"`
	Role                  string `json:"role"`
	PasswordChangePending bool   `json:"password_change_pending,omitempty"`
}

// StatusResponse reports which step of a multi-step flow the client is on
type StatusResponse struct {
	Status  string            `json:"status"`
	Account *IdentityResponse `json:"account,omitempty"`
}

func identityResponse(id *session.Identity) *IdentityResponse {
	return &IdentityResponse{AccountID: id.AccountID, Email: id.Email, Role: id.Role}
}

// CSRFToken handles GET /auth/csrf
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	token, err := h.csrf.EnsureCSRFToken(r.Context(), sess)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFResponse{CSRFToken: token})
}

// Login handles POST /auth/login. A fully authenticated login answers 200; a
// login that still needs a second factor answers 202.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.login.Login(r.Context(), sess, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if result.Outcome == services.LoginSecondFactorRequired {
		pkghttp.WriteJSON(w, http.StatusAccepted, StatusResponse{Status: result.Outcome.String()})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  result.Outcome.String(),
		Account: identityResponse(result.Identity),
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	if err := h.login.Logout(r.Context(), sess); err != nil {
		writeServiceError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Logged out")
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}
	if !sess.State.Authenticated() {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	resp := identityResponse(sess.State.Identity)
	resp.PasswordChangePending = sess.State.PendingPasswordChange != nil
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ChangePassword handles POST /auth/password. Without two-factor the change
// is applied and the session ends (200); with two-factor it waits for a
// code on /auth/2fa/verify (202).
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.password.RequestChange(r.Context(), sess, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if outcome == services.PasswordChangePending {
		pkghttp.WriteJSON(w, http.StatusAccepted, StatusResponse{Status: "second_factor_required"})
		return
	}

	writeMessage(w, http.StatusOK, "Password changed. Please sign in again.")
}
