package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

// NormalizeEmail trims email and, when caseInsensitive, lower-cases it.
func NormalizeEmail(email string, caseInsensitive bool) string {
	email = strings.TrimSpace(email)
	if caseInsensitive {
		email = strings.ToLower(email)
	}
	return email
}

// identityOf builds the session identity for a.
func identityOf(a *models.Account) session.Identity {
	return session.Identity{AccountID: a.ID, Email: a.Email, Role: a.Role}
}

// currentAccount re-reads the account behind an authenticated session.
func currentAccount(ctx context.Context, repo AccountRepository, sess *session.Session, logger *slog.Logger) (*models.Account, error) {
	if sess == nil || !sess.State.Authenticated() {
		return nil, models.ErrUnauthorized
	}

	account, err := repo.GetByID(ctx, sess.State.Identity.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.Info("session refers to a deleted account", slog.String("account_id", sess.State.Identity.AccountID))
			return nil, models.ErrUnauthorized
		}
		logger.Error("failed to load account", slog.String("account_id", sess.State.Identity.AccountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// weakPassword wraps a policy failure so callers can match ErrWeakPassword
// and still extract the individual failures.
func weakPassword(err error) error {
	var pve *pkgauth.PasswordValidationError
	if errors.As(err, &pve) {
		return fmt.Errorf("%w: %w", models.ErrWeakPassword, pve)
	}
	return models.ErrWeakPassword
}

// reauth checks a signed-in admin's password under the account lockout
// shared with login.
type reauth struct {
	repo        AccountRepository
	hasher      pkgauth.Hasher
	lockout     *auth.LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// verify returns nil when password matches, a LockedError while the account
// is locked or once this failure locks it, and wrong for any other mismatch.
// Changed counters are saved before returning.
func (r reauth) verify(ctx context.Context, account *models.Account, password, event, reason string, wrong error) error {
	if status := r.lockout.Check(&account.Lockout); status.Locked {
		r.auditLogger.Failure(ctx, event, account.ID, "account_locked")
		return models.NewAccountLockedError(status.MinutesRemaining)
	}

	if !r.hasher.Verify(password, account.PasswordHash) {
		status := r.lockout.RecordFailure(&account.Lockout)
		if err := r.repo.Save(ctx, account); err != nil {
			r.logger.Error("failed to record failed password check", slog.String("account_id", account.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if status.Locked {
			r.logger.Warn("account locked after repeated failures", slog.String("account_id", account.ID))
			r.auditLogger.Failure(ctx, pkglogger.EventAccountLocked, account.ID, "too_many_failures")
			return models.NewAccountLockedError(status.MinutesRemaining)
		}
		r.auditLogger.Failure(ctx, event, account.ID, reason)
		return wrong
	}

	if account.Lockout.FailedAttempts == 0 && account.Lockout.LockUntil == nil {
		return nil
	}
	r.lockout.RecordSuccess(&account.Lockout)
	if err := r.repo.Save(ctx, account); err != nil {
		r.logger.Error("failed to reset lockout", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
