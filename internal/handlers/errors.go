package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

func writeBadRequest(w http.ResponseWriter, message string) {
	pkghttp.WriteBadRequest(w, message)
}

// writeServiceError maps a service error onto the JSON error envelope.
// Unknown errors are reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var locked *models.LockedError
	if errors.As(err, &locked) {
		message := "Account is temporarily locked. Please try again later."
		if errors.Is(err, models.ErrTwoFactorLocked) {
			message = "Too many invalid verification codes. Please try again later."
		}
		pkghttp.WriteLocked(w, message, locked.MinutesRemaining)
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		// Same response for an unknown email and a wrong password.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Invalid verification code")
	case errors.Is(err, models.ErrIncorrectPassword):
		pkghttp.WriteError(w, http.StatusUnauthorized, "incorrect_password", "Incorrect password")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")

	case errors.Is(err, models.ErrWeakPassword):
		var details string
		var pve *pkgauth.PasswordValidationError
		if errors.As(err, &pve) {
			details = strings.Join(pve.Errors, "; ")
		}
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "weak_password",
			"Password does not meet the requirements", details)
	case errors.Is(err, models.ErrSameAsCurrent):
		pkghttp.WriteError(w, http.StatusBadRequest, "same_as_current", "New password must differ from the current password")
	case errors.Is(err, models.ErrPasswordMismatch):
		pkghttp.WriteError(w, http.StatusBadRequest, "password_mismatch", "Passwords do not match")
	case errors.Is(err, models.ErrWrongCurrentPassword):
		pkghttp.WriteError(w, http.StatusBadRequest, "wrong_current_password", "Current password is incorrect")
	case errors.Is(err, models.ErrNoPendingTwoFactor):
		pkghttp.WriteError(w, http.StatusBadRequest, "no_pending_verification", "No login is waiting for verification")
	case errors.Is(err, models.ErrNoPendingPasswordChg):
		pkghttp.WriteError(w, http.StatusBadRequest, "no_pending_verification", "No password change is waiting for verification")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")

	case errors.Is(err, models.ErrManagementAuthRequired):
		pkghttp.WriteError(w, http.StatusForbidden, "management_auth_required", "Admin management login required")
	case errors.Is(err, models.ErrAccessDenied):
		pkghttp.WriteForbidden(w, "Access denied")
	case errors.Is(err, models.ErrCannotDeleteSelf):
		pkghttp.WriteForbidden(w, "You cannot delete your own account")
	case errors.Is(err, models.ErrCannotDeleteMain):
		pkghttp.WriteForbidden(w, "Main admin accounts cannot be deleted")

	case errors.Is(err, models.ErrTwoFactorEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrTwoFactorNotSetUp):
		pkghttp.WriteConflict(w, "Two-factor setup has not been started")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "An account with these details already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// sessionFrom returns the request's session, writing a 500 if the session
// middleware did not run.
func sessionFrom(w http.ResponseWriter, r *http.Request) *session.Session {
	sess := session.FromContext(r.Context())
	if sess == nil {
		pkghttp.WriteInternalError(w, "Internal server error")
	}
	return sess
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	pkghttp.WriteJSON(w, status, MessageResponse{Message: message})
}
