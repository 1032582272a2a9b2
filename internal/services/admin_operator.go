package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/wazgo/internal/models"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
)

// Operator actions run outside any session, from the command line or at
// startup. They bypass the management gate.

// EnsureMainAdmin creates a main admin when no admin exists yet. It reports
// whether an account was created.
func (s *AdminService) EnsureMainAdmin(ctx context.Context, email, password string) (bool, error) {
	count, err := s.repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Error("failed to count admins", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	if count > 0 {
		return false, nil
	}

	created, err := s.createAccount(ctx, email, password, true)
	if err != nil {
		return false, err
	}

	s.logger.Info("bootstrapped main admin", slog.String("account_id", created.ID))
	return true, nil
}

// ProvisionAdmin creates an admin account.
func (s *AdminService) ProvisionAdmin(ctx context.Context, email, password string, isMainAdmin bool) (*models.Account, error) {
	created, err := s.createAccount(ctx, email, password, isMainAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin provisioned", slog.String("account_id", created.ID), slog.Bool("main", isMainAdmin))
	return created, nil
}

// PromoteMainAdmin makes email the main admin. Without transfer it fails with
// models.ErrConflict if a different main admin exists.
func (s *AdminService) PromoteMainAdmin(ctx context.Context, email string, transfer bool) error {
	account, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if account.IsMainAdmin {
		return nil
	}

	if !transfer {
		account.IsMainAdmin = true
		if err := s.repo.Save(ctx, account); err != nil {
			if errors.Is(err, models.ErrConflict) {
				return models.ErrConflict
			}
			s.logger.Error("failed to promote admin", slog.Any("error", err))
			return models.ErrInternalServer
		}
	} else if err := s.repo.TransferMainAdmin(ctx, account.ID); err != nil {
		s.logger.Error("failed to transfer main admin", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("main admin set", slog.String("account_id", account.ID), slog.Bool("transfer", transfer))
	return nil
}

// ResetPassword sets a new password, clears both lockouts and removes
// two-factor so the owner can sign in again.
func (s *AdminService) ResetPassword(ctx context.Context, email, password string) error {
	account, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return weakPassword(err)
	}

	account.Password = password
	account.Lockout = models.Lockout{}
	account.ClearTwoFactor()
	if err := s.repo.Save(ctx, account); err != nil {
		s.logger.Error("failed to reset password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password reset by operator", slog.String("account_id", account.ID))
	return nil
}

func (s *AdminService) lookup(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.repo.GetByEmail(ctx, NormalizeEmail(email, s.caseInsensitive))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load admin", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}
