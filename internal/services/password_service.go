package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

// PasswordChangeOutcome is the non-error result of RequestChange.
type PasswordChangeOutcome int

const (
	PasswordChanged PasswordChangeOutcome = iota
	PasswordChangePending
)

// PasswordService handles password changes by a signed-in admin.
type PasswordService struct {
	repo        AccountRepository
	hasher      pkgauth.Hasher
	sessions    SessionManager
	notifier    SecurityNotifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	reauth      reauth
}

func NewPasswordService(
	repo AccountRepository,
	hasher pkgauth.Hasher,
	lockout *auth.LockoutPolicy,
	sessions SessionManager,
	notifier SecurityNotifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PasswordService{
		repo:        repo,
		hasher:      hasher,
		sessions:    sessions,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
		reauth:      reauth{repo: repo, hasher: hasher, lockout: lockout, logger: logger, auditLogger: auditLogger},
	}
}

// RequestChange validates a password change in a fixed order: same as current,
// confirmation mismatch, wrong current password, then policy. The current
// password check shares the login lockout. Without
// two-factor the change is applied and the session ends. With two-factor the
// new password is hashed into the session and PasswordChangePending is
// returned; TwoFactorService.VerifyForPasswordChange applies it.
func (s *PasswordService) RequestChange(ctx context.Context, sess *session.Session, currentPassword, newPassword, confirmPassword string) (PasswordChangeOutcome, error) {
	if sess == nil || !sess.State.Authenticated() {
		return 0, models.ErrUnauthorized
	}

	if strings.TrimSpace(newPassword) == strings.TrimSpace(currentPassword) {
		return 0, models.ErrSameAsCurrent
	}
	if confirmPassword != newPassword {
		return 0, models.ErrPasswordMismatch
	}

	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return 0, err
	}

	if err := s.reauth.verify(ctx, account, currentPassword, pkglogger.EventPasswordChangeRequest,
		"wrong_current_password", models.ErrWrongCurrentPassword); err != nil {
		return 0, err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return 0, weakPassword(err)
	}

	if account.TwoFactorEnabled {
		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			s.logger.Error("failed to hash new password", slog.String("account_id", account.ID), slog.Any("error", err))
			return 0, models.ErrInternalServer
		}

		sess.State.PendingPasswordChange = &session.PendingPasswordChange{
			AccountID:       account.ID,
			NewPasswordHash: digest,
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Error("failed to save session", slog.Any("error", err))
			return 0, models.ErrInternalServer
		}

		s.auditLogger.Success(ctx, pkglogger.EventPasswordChangeRequest, account.ID)
		return PasswordChangePending, nil
	}

	account.Password = newPassword
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to change password", slog.String("account_id", account.ID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if err := s.sessions.Destroy(ctx, sess); err != nil {
		s.logger.Error("failed to destroy session", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.logger.Info("password changed", slog.String("account_id", account.ID))
	s.auditLogger.Success(ctx, pkglogger.EventPasswordChanged, account.ID)
	if err := s.notifier.NotifyPasswordChanged(ctx, account.Email); err != nil {
		s.logger.Warn("failed to send security notification", slog.String("account_id", account.ID), slog.Any("error", err))
	}

	return PasswordChanged, nil
}
