package models

import (
	"time"
)

const RoleAdmin = "admin"

// Lockout is a failure counter with an optional lock expiry.
type Lockout struct {
	FailedAttempts int
	LockUntil      *time.Time
}

// Account is an admin panel login.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	// Password, when set, is hashed by the repository on Create/Save and then cleared.
	Password    string
	Role        string
	IsMainAdmin bool

	Lockout     Lockout // password attempts
	CodeLockout Lockout // second factor attempts

	TwoFactorEnabled         bool
	TwoFactorSecretEncrypted []byte // AES-256-GCM sealed TOTP secret
	TwoFactorSecretNonce     []byte // GCM nonce (12 bytes)

	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasTwoFactorSecret reports whether a TOTP secret is provisioned, confirmed or not.
func (a *Account) HasTwoFactorSecret() bool {
	return len(a.TwoFactorSecretEncrypted) > 0
}

// ClearTwoFactor removes the secret and disables the second factor.
func (a *Account) ClearTwoFactor() {
	a.TwoFactorEnabled = false
	a.TwoFactorSecretEncrypted = nil
	a.TwoFactorSecretNonce = nil
	a.CodeLockout = Lockout{}
}

// AdminSummary is the listing view of an account for the management surface.
type AdminSummary struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	IsMainAdmin      bool      `json:"is_main_admin"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	Locked           bool      `json:"locked"`
	CreatedAt        time.Time `json:"created_at"`
}

// Summary returns the listing view of a, computing Locked against now.
func (a *Account) Summary(now time.Time) AdminSummary {
	return AdminSummary{
		ID:               a.ID,
		Email:            a.Email,
		Role:             a.Role,
		IsMainAdmin:      a.IsMainAdmin,
		TwoFactorEnabled: a.TwoFactorEnabled,
		Locked:           a.Lockout.LockUntil != nil && now.Before(*a.Lockout.LockUntil),
		CreatedAt:        a.CreatedAt,
	}
}
