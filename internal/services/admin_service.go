package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

// AdminService guards the admin management surface. Every operation needs an
// authenticated main admin; listing and mutation additionally need the
// session's management re-authentication flag.
type AdminService struct {
	repo            AccountRepository
	sessions        SessionManager
	caseInsensitive bool
	logger          *slog.Logger
	auditLogger     *pkglogger.AuditLogger
	reauth          reauth
	now             func() time.Time
}

func NewAdminService(
	repo AccountRepository,
	hasher pkgauth.Hasher,
	lockout *auth.LockoutPolicy,
	sessions SessionManager,
	caseInsensitive bool,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AdminService {
	return &AdminService{
		repo:            repo,
		sessions:        sessions,
		caseInsensitive: caseInsensitive,
		logger:          logger,
		auditLogger:     auditLogger,
		reauth:          reauth{repo: repo, hasher: hasher, lockout: lockout, logger: logger, auditLogger: auditLogger},
		now:             time.Now,
	}
}

// requireMainAdmin resolves the session's account from storage and checks the
// main admin flag there, not in the session.
func (s *AdminService) requireMainAdmin(ctx context.Context, sess *session.Session) (*models.Account, error) {
	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return nil, err
	}
	if !account.IsMainAdmin {
		s.auditLogger.Failure(ctx, pkglogger.EventAdminManagementDenied, account.ID, "not_main_admin")
		return nil, models.ErrAccessDenied
	}
	return account, nil
}

func (s *AdminService) requireManagement(ctx context.Context, sess *session.Session) (*models.Account, error) {
	account, err := s.requireMainAdmin(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !sess.State.AdminManagementAuthenticated {
		return nil, models.ErrManagementAuthRequired
	}
	return account, nil
}

// Enter reports whether the session may use the management surface and
// whether it has already re-authenticated.
func (s *AdminService) Enter(ctx context.Context, sess *session.Session) (bool, error) {
	if _, err := s.requireMainAdmin(ctx, sess); err != nil {
		return false, err
	}
	return sess.State.AdminManagementAuthenticated, nil
}

// Login re-checks the main admin's password and opens management access.
// Failures count toward the same lockout as the login form.
func (s *AdminService) Login(ctx context.Context, sess *session.Session, password string) error {
	account, err := s.requireMainAdmin(ctx, sess)
	if err != nil {
		return err
	}

	if err := s.reauth.verify(ctx, account, password, pkglogger.EventAdminManagementLogin,
		"incorrect_password", models.ErrIncorrectPassword); err != nil {
		return err
	}

	sess.State.AdminManagementAuthenticated = true
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to save session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventAdminManagementLogin, account.ID)
	return nil
}

// Logout closes management access but keeps the login.
func (s *AdminService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil || !sess.State.Authenticated() {
		return models.ErrUnauthorized
	}
	if !sess.State.AdminManagementAuthenticated {
		return nil
	}

	sess.State.AdminManagementAuthenticated = false
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to save session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventAdminManagementLogout, sess.State.Identity.AccountID)
	return nil
}

func (s *AdminService) ListAdmins(ctx context.Context, sess *session.Session) ([]models.AdminSummary, error) {
	if _, err := s.requireManagement(ctx, sess); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListAdmins(ctx)
	if err != nil {
		s.logger.Error("failed to list admins", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	summaries := make([]models.AdminSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, a.Summary(now))
	}
	return summaries, nil
}

// CreateAdmin adds an admin account. A duplicate email, or a second main
// admin, is models.ErrConflict.
func (s *AdminService) CreateAdmin(ctx context.Context, sess *session.Session, email, password string, isMainAdmin bool) (*models.AdminSummary, error) {
	actor, err := s.requireManagement(ctx, sess)
	if err != nil {
		return nil, err
	}

	created, err := s.createAccount(ctx, email, password, isMainAdmin)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin created", slog.String("account_id", created.ID), slog.String("by", actor.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventAdminCreated,
		AccountID: actor.ID,
		Success:   true,
		Metadata:  map[string]string{"target_id": created.ID},
	})

	summary := created.Summary(s.now())
	return &summary, nil
}

// DeleteAdmin removes another, non-main admin.
func (s *AdminService) DeleteAdmin(ctx context.Context, sess *session.Session, id string) error {
	actor, err := s.requireManagement(ctx, sess)
	if err != nil {
		return err
	}
	if id == actor.ID {
		return models.ErrCannotDeleteSelf
	}

	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load admin", slog.String("target_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if target.IsMainAdmin {
		s.auditLogger.Failure(ctx, pkglogger.EventAdminDeleted, actor.ID, "target_is_main_admin")
		return models.ErrCannotDeleteMain
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete admin", slog.String("target_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("admin deleted", slog.String("account_id", id), slog.String("by", actor.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventAdminDeleted,
		AccountID: actor.ID,
		Success:   true,
		Metadata:  map[string]string{"target_id": id},
	})
	return nil
}

func (s *AdminService) createAccount(ctx context.Context, email, password string, isMainAdmin bool) (*models.Account, error) {
	email = NormalizeEmail(email, s.caseInsensitive)
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check email uniqueness", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, weakPassword(err)
	}

	created, err := s.repo.Create(ctx, &models.Account{
		Email:       email,
		Password:    password,
		Role:        models.RoleAdmin,
		IsMainAdmin: isMainAdmin,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create admin", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return created, nil
}
