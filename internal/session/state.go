package session

import (
	"errors"
	"time"
)

// ErrInvalidState is returned when a State combines fields that cannot coexist.
var ErrInvalidState = errors.New("invalid session state")

// Identity is the fully authenticated account bound to a session.
type Identity struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// PendingPasswordChange holds a validated, already hashed new password that
// waits for a second factor before it is applied.
type PendingPasswordChange struct {
	AccountID       string `json:"account_id"`
	NewPasswordHash string `json:"new_password_hash"`
}

// State is everything the server keeps for one session.
//
// A session is in exactly one of three phases: anonymous (no Identity, no
// Pending2FA), awaiting a second factor (Pending2FA only) or authenticated
// (Identity set). PendingPasswordChange and AdminManagementAuthenticated only
// exist alongside an Identity.
type State struct {
	Identity                     *Identity              `json:"identity,omitempty"`
	Pending2FA                   string                 `json:"pending_2fa,omitempty"`
	PendingPasswordChange        *PendingPasswordChange `json:"pending_password_change,omitempty"`
	AdminManagementAuthenticated bool                   `json:"admin_management_authenticated,omitempty"`
	CSRFToken                    string                 `json:"csrf_token,omitempty"`
	CreatedAt                    time.Time              `json:"created_at"`
}

// Validate checks the phase rules documented on State.
func (s *State) Validate() error {
	if s.Identity != nil {
		if s.Identity.AccountID == "" {
			return ErrInvalidState
		}
		if s.Pending2FA != "" {
			return ErrInvalidState
		}
	} else if s.PendingPasswordChange != nil || s.AdminManagementAuthenticated {
		return ErrInvalidState
	}

	if p := s.PendingPasswordChange; p != nil {
		if p.AccountID != s.Identity.AccountID || p.NewPasswordHash == "" {
			return ErrInvalidState
		}
	}
	return nil
}

// Authenticated reports whether a full login has completed.
func (s *State) Authenticated() bool {
	return s.Identity != nil
}

// Authenticate moves the session to the authenticated phase, dropping any
// pending operations and management access from a previous identity.
func (s *State) Authenticate(id Identity) {
	s.Identity = &id
	s.Pending2FA = ""
	s.PendingPasswordChange = nil
	s.AdminManagementAuthenticated = false
}

// AwaitSecondFactor moves the session to the pending second factor phase.
func (s *State) AwaitSecondFactor(accountID string) {
	s.Identity = nil
	s.Pending2FA = accountID
	s.PendingPasswordChange = nil
	s.AdminManagementAuthenticated = false
}

// Reset clears everything except CreatedAt.
func (s *State) Reset() {
	*s = State{CreatedAt: s.CreatedAt}
}
