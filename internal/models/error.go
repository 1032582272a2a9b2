package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login outcomes
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")

	// Second factor
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrTwoFactorLocked      = errors.New("too many invalid verification codes")
	ErrTwoFactorNotSetUp    = errors.New("two-factor authentication has not been set up")
	ErrTwoFactorEnabled     = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication is not enabled")
	ErrNoPendingTwoFactor   = errors.New("no pending two-factor verification")
	ErrNoPendingPasswordChg = errors.New("no pending password change")

	// Password change
	ErrWeakPassword         = errors.New("password does not meet requirements")
	ErrSameAsCurrent        = errors.New("new password must differ from the current password")
	ErrPasswordMismatch     = errors.New("password confirmation does not match")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")

	// Admin management
	ErrAccessDenied           = errors.New("access denied")
	ErrIncorrectPassword      = errors.New("incorrect password")
	ErrManagementAuthRequired = errors.New("admin management re-authentication required")
	ErrCannotDeleteSelf       = errors.New("cannot delete your own account")
	ErrCannotDeleteMain       = errors.New("main admin accounts cannot be deleted")
)

// LockedError reports an active lock and how long it has left. It matches
// its Sentinel under errors.Is.
type LockedError struct {
	Sentinel         error
	MinutesRemaining int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: %d minutes remaining", e.Sentinel, e.MinutesRemaining)
}

func (e *LockedError) Unwrap() error {
	return e.Sentinel
}

// NewAccountLockedError returns a LockedError for the password lockout.
func NewAccountLockedError(minutes int) *LockedError {
	return &LockedError{Sentinel: ErrAccountLocked, MinutesRemaining: minutes}
}

// NewTwoFactorLockedError returns a LockedError for the verification code lockout.
func NewTwoFactorLockedError(minutes int) *LockedError {
	return &LockedError{Sentinel: ErrTwoFactorLocked, MinutesRemaining: minutes}
}
