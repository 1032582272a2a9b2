package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// Verification contexts accepted by POST /auth/2fa/verify.
const (
	VerifyContextLogin          = "login"
	VerifyContextPasswordChange = "password_change"
)

// TwoFactorServiceInterface defines the TOTP lifecycle and verification steps
type TwoFactorServiceInterface interface {
	BeginSetup(ctx context.Context, sess *session.Session) (*auth.Enrollment, error)
	ConfirmEnable(ctx context.Context, sess *session.Session, code string) error
	Disable(ctx context.Context, sess *session.Session, code string) error
	VerifyForLogin(ctx context.Context, sess *session.Session, code string) (*session.Identity, error)
	VerifyForPasswordChange(ctx context.Context, sess *session.Session, code string) error
}

// TwoFactorHandler handles /auth/2fa requests
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// CodeRequest carries a six digit TOTP code
type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyRequest carries a code and the flow it completes; login is the default
type VerifyRequest struct {
	Code    string `json:"code" validate:"required,len=6,numeric"`
	Context string `json:"context" validate:"omitempty,oneof=login password_change"`
}

// SetupResponse is shown once while enrolling an authenticator app
type SetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
}

// Verify handles POST /auth/2fa/verify
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req VerifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.Context == VerifyContextPasswordChange {
		if err := h.service.VerifyForPasswordChange(r.Context(), sess, req.Code); err != nil {
			writeServiceError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Password changed. Please sign in again.")
		return
	}

	identity, err := h.service.VerifyForLogin(r.Context(), sess, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  "authenticated",
		Account: identityResponse(identity),
	})
}

// Setup handles POST /auth/2fa/setup
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	enrollment, err := h.service.BeginSetup(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SetupResponse{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.URL,
		QRCode:     enrollment.QRCode,
	})
}

// Enable handles POST /auth/2fa/enable. The session ends on success.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, h.service.ConfirmEnable, "Two-factor authentication enabled. Please sign in again.")
}

// Disable handles POST /auth/2fa/disable. The session ends on success.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, h.service.Disable, "Two-factor authentication disabled. Please sign in again.")
}

func (h *TwoFactorHandler) withCode(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, *session.Session, string) error,
	success string,
) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req CodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := op(r.Context(), sess, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, success)
}
