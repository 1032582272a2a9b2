package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

// TwoFactorService manages the TOTP lifecycle of an account
// (disabled, secret provisioned, enabled) and the two second factor checks
// that complete a login or a deferred password change.
//
// Every code check goes through one per-account lockout.
type TwoFactorService struct {
	repo        AccountRepository
	totp        TOTPProvider
	codeLockout *auth.LockoutPolicy
	sessions    SessionManager
	notifier    SecurityNotifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewTwoFactorService(
	repo AccountRepository,
	totp TOTPProvider,
	codeLockout *auth.LockoutPolicy,
	sessions SessionManager,
	notifier SecurityNotifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *TwoFactorService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TwoFactorService{
		repo:        repo,
		totp:        totp,
		codeLockout: codeLockout,
		sessions:    sessions,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// BeginSetup provisions a new secret for the session's account, replacing any
// unconfirmed one. Two-factor stays disabled until ConfirmEnable.
func (s *TwoFactorService) BeginSetup(ctx context.Context, sess *session.Session) (*auth.Enrollment, error) {
	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, models.ErrTwoFactorEnabled
	}

	enrollment, err := s.totp.Generate(account.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sealed, nonce, err := s.totp.Seal(enrollment.Secret)
	if err != nil {
		s.logger.Error("failed to seal TOTP secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account.TwoFactorSecretEncrypted = sealed
	account.TwoFactorSecretNonce = nonce
	account.CodeLockout = models.Lockout{}
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to store TOTP secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventSecondFactorSetup, account.ID)
	return enrollment, nil
}

// ConfirmEnable turns two-factor on once code matches the provisioned secret,
// then ends the session so the next login uses the second factor.
func (s *TwoFactorService) ConfirmEnable(ctx context.Context, sess *session.Session, code string) error {
	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return models.ErrTwoFactorEnabled
	}
	if !account.HasTwoFactorSecret() {
		return models.ErrTwoFactorNotSetUp
	}

	if err := s.checkCode(ctx, account, code, pkglogger.EventSecondFactorEnabled); err != nil {
		return err
	}

	account.TwoFactorEnabled = true
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to enable two-factor", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventSecondFactorEnabled, account.ID)
	s.notify(ctx, account, func() error { return s.notifier.NotifyTwoFactorChanged(ctx, account.Email, true) })
	return s.endSession(ctx, sess)
}

// Disable turns two-factor off and removes the secret when code matches. A
// wrong code leaves both the account and the session untouched.
func (s *TwoFactorService) Disable(ctx context.Context, sess *session.Session, code string) error {
	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}

	if err := s.checkCode(ctx, account, code, pkglogger.EventSecondFactorDisabled); err != nil {
		return err
	}

	account.ClearTwoFactor()
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to disable two-factor", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventSecondFactorDisabled, account.ID)
	s.notify(ctx, account, func() error { return s.notifier.NotifyTwoFactorChanged(ctx, account.Email, false) })
	return s.endSession(ctx, sess)
}

// VerifyForLogin completes a login that is waiting for a second factor. On a
// wrong code the pending marker stays so the user can retry.
func (s *TwoFactorService) VerifyForLogin(ctx context.Context, sess *session.Session, code string) (*session.Identity, error) {
	accountID := sess.State.Pending2FA
	if accountID == "" {
		return nil, models.ErrNoPendingTwoFactor
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.abandonPending(ctx, sess)
		}
		s.logger.Error("failed to load pending account", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !account.TwoFactorEnabled {
		// Two-factor was switched off out of band; the password step must be redone.
		return nil, s.abandonPending(ctx, sess)
	}

	if err := s.checkCode(ctx, account, code, pkglogger.EventSecondFactorVerify); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to reset code lockout", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	identity := identityOf(account)
	sess.State.Authenticate(identity)
	if err := s.sessions.Rotate(ctx, sess); err != nil {
		s.logger.Error("failed to rotate session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.Success(ctx, pkglogger.EventSecondFactorVerify, account.ID)
	s.auditLogger.Success(ctx, pkglogger.EventLogin, account.ID)
	return &identity, nil
}

// VerifyForPasswordChange applies a deferred password change once code
// matches, then ends the session.
func (s *TwoFactorService) VerifyForPasswordChange(ctx context.Context, sess *session.Session, code string) error {
	if !sess.State.Authenticated() {
		return models.ErrUnauthorized
	}
	pending := sess.State.PendingPasswordChange
	if pending == nil {
		return models.ErrNoPendingPasswordChg
	}

	account, err := currentAccount(ctx, s.repo, sess, s.logger)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		sess.State.PendingPasswordChange = nil
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Error("failed to save session", slog.Any("error", err))
			return models.ErrInternalServer
		}
		return models.ErrNoPendingPasswordChg
	}

	if err := s.checkCode(ctx, account, code, pkglogger.EventPasswordChanged); err != nil {
		return err
	}

	now := s.now()
	account.PasswordHash = pending.NewPasswordHash
	account.PasswordChangedAt = &now
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to apply password change", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password changed", slog.String("account_id", account.ID))
	s.auditLogger.Success(ctx, pkglogger.EventPasswordChanged, account.ID)
	s.notify(ctx, account, func() error { return s.notifier.NotifyPasswordChanged(ctx, account.Email) })
	return s.endSession(ctx, sess)
}

// checkCode validates code for account behind the code lockout. On success
// the lockout is cleared in memory; the caller saves the account.
func (s *TwoFactorService) checkCode(ctx context.Context, account *models.Account, code, event string) error {
	if status := s.codeLockout.Check(&account.CodeLockout); status.Locked {
		s.auditLogger.Failure(ctx, event, account.ID, "code_locked")
		return models.NewTwoFactorLockedError(status.MinutesRemaining)
	}

	secret, err := s.totp.Open(account.TwoFactorSecretEncrypted, account.TwoFactorSecretNonce)
	if err != nil {
		s.logger.Error("failed to open TOTP secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if s.totp.Validate(secret, code) {
		s.codeLockout.RecordSuccess(&account.CodeLockout)
		return nil
	}

	status := s.codeLockout.RecordFailure(&account.CodeLockout)
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to record invalid code", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if status.Locked {
		s.logger.Warn("second factor locked after repeated failures", slog.String("account_id", account.ID))
		s.auditLogger.Failure(ctx, pkglogger.EventSecondFactorLocked, account.ID, "too_many_failures")
		return models.NewTwoFactorLockedError(status.MinutesRemaining)
	}

	s.auditLogger.Failure(ctx, event, account.ID, "invalid_code")
	return models.ErrInvalidCode
}

// abandonPending drops the pending second factor but keeps the CSRF token,
// since the browser still holds the same session cookie.
func (s *TwoFactorService) abandonPending(ctx context.Context, sess *session.Session) error {
	csrf := sess.State.CSRFToken
	sess.State.Reset()
	sess.State.CSRFToken = csrf
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to save session", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return models.ErrNoPendingTwoFactor
}

func (s *TwoFactorService) endSession(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		s.logger.Error("failed to destroy session", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func (s *TwoFactorService) notify(ctx context.Context, account *models.Account, send func() error) {
	if err := send(); err != nil {
		s.logger.Warn("failed to send security notification",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
	}
}
