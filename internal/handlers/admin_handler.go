package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// AdminServiceInterface defines the admin management contract.
type AdminServiceInterface interface {
	Enter(ctx context.Context, sess *session.Session) (bool, error)
	Login(ctx context.Context, sess *session.Session, password string) error
	Logout(ctx context.Context, sess *session.Session) error
	ListAdmins(ctx context.Context, sess *session.Session) ([]models.AdminSummary, error)
	CreateAdmin(ctx context.Context, sess *session.Session, email, password string, isMainAdmin bool) (*models.AdminSummary, error)
	DeleteAdmin(ctx context.Context, sess *session.Session, id string) error
}

// AdminHandler handles admin management HTTP requests.
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// ManagementLoginRequest re-enters the main admin's password.
type ManagementLoginRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
}

// CreateAdminRequest represents the request body for a new admin.
type CreateAdminRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=1024"`
	IsMainAdmin bool   `json:"is_main_admin"`
}

// ManagementStatusResponse answers GET /admin/manage.
type ManagementStatusResponse struct {
	ManagementAuthenticated bool `json:"management_authenticated"`
}

// AdminListResponse answers GET /admin/manage/admins.
type AdminListResponse struct {
	Admins []models.AdminSummary `json:"admins"`
}

// Status handles GET /admin/manage
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	authenticated, err := h.service.Enter(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ManagementStatusResponse{ManagementAuthenticated: authenticated})
}

// Login handles POST /admin/manage/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req ManagementLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Login(r.Context(), sess, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ManagementStatusResponse{ManagementAuthenticated: true})
}

// Logout handles POST /admin/manage/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	if err := h.service.Logout(r.Context(), sess); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ManagementStatusResponse{ManagementAuthenticated: false})
}

// ListAdmins handles GET /admin/manage/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	admins, err := h.service.ListAdmins(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AdminListResponse{Admins: admins})
}

// CreateAdmin handles POST /admin/manage/admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	var req CreateAdminRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.service.CreateAdmin(r.Context(), sess, req.Email, req.Password, req.IsMainAdmin)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, created)
}

// DeleteAdmin handles DELETE /admin/manage/admins/{id}
func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(w, r)
	if sess == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := validate.Var(id, "required,uuid"); err != nil {
		writeBadRequest(w, "Invalid admin id")
		return
	}

	if err := h.service.DeleteAdmin(r.Context(), sess, id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
