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

// LoginOutcome is the non-error result of a login attempt.
type LoginOutcome int

const (
	LoginAuthenticated LoginOutcome = iota
	LoginSecondFactorRequired
)

func (o LoginOutcome) String() string {
	if o == LoginSecondFactorRequired {
		return "second_factor_required"
	}
	return "authenticated"
}

// LoginResult describes a successful password check.
type LoginResult struct {
	Outcome  LoginOutcome
	Identity *session.Identity // nil while a second factor is pending
}

// LoginService runs the password login state machine.
type LoginService struct {
	repo            AccountRepository
	hasher          pkgauth.Hasher
	lockout         *auth.LockoutPolicy
	timing          *auth.TimingDelay
	sessions        SessionManager
	caseInsensitive bool
	dummyHash       string
	logger          *slog.Logger
	auditLogger     *pkglogger.AuditLogger
}

func NewLoginService(
	repo AccountRepository,
	hasher pkgauth.Hasher,
	lockout *auth.LockoutPolicy,
	timing *auth.TimingDelay,
	sessions SessionManager,
	caseInsensitive bool,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginService {
	// Compared against when the email is unknown so both paths cost one hash.
	dummyHash, err := hasher.Hash("wazgo-timing-equaliser")
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", slog.Any("error", err))
	}

	return &LoginService{
		repo:            repo,
		hasher:          hasher,
		lockout:         lockout,
		timing:          timing,
		sessions:        sessions,
		caseInsensitive: caseInsensitive,
		dummyHash:       dummyHash,
		logger:          logger,
		auditLogger:     auditLogger,
	}
}

// Login checks email and password. It returns models.ErrInvalidCredentials
// for an unknown email or a wrong password, a *models.LockedError while the
// account is locked or when this failure locks it, and models.ErrInternalServer
// when storage fails. On success the session either becomes authenticated
// (under a new token) or waits for a second factor.
func (s *LoginService) Login(ctx context.Context, sess *session.Session, email, password string) (*LoginResult, error) {
	start := time.Now()

	email = NormalizeEmail(email, s.caseInsensitive)
	if email == "" || password == "" {
		s.timing.WaitFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			s.auditLogger.Log(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLogin,
				Email:         email,
				FailureReason: "invalid_credentials",
			})
			s.timing.WaitFrom(ctx, start)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if status := s.lockout.Check(&account.Lockout); status.Locked {
		s.auditLogger.Failure(ctx, pkglogger.EventLogin, account.ID, "account_locked")
		return nil, models.NewAccountLockedError(status.MinutesRemaining)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		status := s.lockout.RecordFailure(&account.Lockout)
		if err := s.repo.Save(ctx, account); err != nil {
			s.logger.Error("failed to record failed login", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		if status.Locked {
			s.logger.Warn("account locked after repeated failures", slog.String("account_id", account.ID))
			s.auditLogger.Failure(ctx, pkglogger.EventAccountLocked, account.ID, "too_many_failures")
			return nil, models.NewAccountLockedError(status.MinutesRemaining)
		}

		s.auditLogger.Failure(ctx, pkglogger.EventLogin, account.ID, "invalid_credentials")
		s.timing.WaitFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	s.lockout.RecordSuccess(&account.Lockout)
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to reset lockout", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.TwoFactorEnabled {
		sess.State.AwaitSecondFactor(account.ID)
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Error("failed to save session", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLogin,
			AccountID: account.ID,
			Success:   true,
			Metadata:  map[string]string{"outcome": LoginSecondFactorRequired.String()},
		})
		return &LoginResult{Outcome: LoginSecondFactorRequired}, nil
	}

	identity := identityOf(account)
	sess.State.Authenticate(identity)
	if err := s.sessions.Rotate(ctx, sess); err != nil {
		s.logger.Error("failed to rotate session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("admin logged in", slog.String("account_id", account.ID))
	s.auditLogger.Success(ctx, pkglogger.EventLogin, account.ID)

	return &LoginResult{Outcome: LoginAuthenticated, Identity: &identity}, nil
}

// Logout ends the session.
func (s *LoginService) Logout(ctx context.Context, sess *session.Session) error {
	var accountID string
	if sess.State.Identity != nil {
		accountID = sess.State.Identity.AccountID
	}

	if err := s.sessions.Destroy(ctx, sess); err != nil {
		s.logger.Error("failed to destroy session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if accountID != "" {
		s.auditLogger.Success(ctx, pkglogger.EventLogout, accountID)
	}
	return nil
}
