package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

func asMain(a *models.Account) { a.IsMainAdmin = true }

// managing returns a main admin session that has passed the management login.
func (e *testEnv) managing(t *testing.T, a *models.Account) *session.Session {
	t.Helper()
	sess := e.signedIn(t, a)
	require.NoError(t, e.admin.Login(context.Background(), sess, testPassword))
	return sess
}

func TestAdminService_NonMainAdminIsDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "main@example.com", asMain)
	other := env.seed(t, "other@example.com")
	target := env.seed(t, "target@example.com")

	sess := env.signedIn(t, other)
	// Even a forged management flag does not help a non-main admin.
	sess.State.AdminManagementAuthenticated = true

	_, err := env.admin.Enter(ctx, sess)
	assert.ErrorIs(t, err, models.ErrAccessDenied)
	assert.ErrorIs(t, env.admin.Login(ctx, sess, testPassword), models.ErrAccessDenied)
	_, err = env.admin.ListAdmins(ctx, sess)
	assert.ErrorIs(t, err, models.ErrAccessDenied)
	_, err = env.admin.CreateAdmin(ctx, sess, "new@example.com", "N3w!Password", false)
	assert.ErrorIs(t, err, models.ErrAccessDenied)
	assert.ErrorIs(t, env.admin.DeleteAdmin(ctx, sess, target.ID), models.ErrAccessDenied)

	_, err = env.repo.GetByID(ctx, target.ID)
	assert.NoError(t, err)
	_, err = env.repo.GetByEmail(ctx, "new@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminService_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.admin.Enter(context.Background(), env.newSession(t))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.ErrorIs(t, env.admin.Logout(context.Background(), env.newSession(t)), models.ErrUnauthorized)
}

func TestAdminService_ManagementLoginRequired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.signedIn(t, main)

	authenticated, err := env.admin.Enter(ctx, sess)
	require.NoError(t, err)
	assert.False(t, authenticated)

	_, err = env.admin.ListAdmins(ctx, sess)
	assert.ErrorIs(t, err, models.ErrManagementAuthRequired)
	_, err = env.admin.CreateAdmin(ctx, sess, "new@example.com", "N3w!Password", false)
	assert.ErrorIs(t, err, models.ErrManagementAuthRequired)
}

func TestAdminService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.signedIn(t, main)

	assert.ErrorIs(t, env.admin.Login(ctx, sess, "Wr0ng!Password"), models.ErrIncorrectPassword)
	assert.False(t, sess.State.AdminManagementAuthenticated)

	require.NoError(t, env.admin.Login(ctx, sess, testPassword))
	assert.True(t, env.reload(t, sess).State.AdminManagementAuthenticated)

	authenticated, err := env.admin.Enter(ctx, sess)
	require.NoError(t, err)
	assert.True(t, authenticated)
}

func TestAdminService_Login_Lockout(t *testing.T) {
	future := time.Now().Add(10 * time.Minute)

	tests := []struct {
		name         string
		lockout      models.Lockout
		wrongBefore  int
		wantErr      error
		wantAttempts int
		wantLocked   bool
	}{
		{name: "success clears earlier failures", lockout: models.Lockout{FailedAttempts: 4}},
		{name: "failures below the threshold", wrongBefore: 4, wantAttempts: 4},
		{name: "threshold locks the account", wrongBefore: 5, wantErr: models.ErrAccountLocked, wantLocked: true},
		{name: "locked account rejects the correct password", lockout: models.Lockout{LockUntil: &future},
			wantErr: models.ErrAccountLocked, wantLocked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			main := env.seed(t, "main@example.com", asMain, func(a *models.Account) { a.Lockout = tt.lockout })
			sess := env.signedIn(t, main)

			for i := 0; i < tt.wrongBefore; i++ {
				err := env.admin.Login(ctx, sess, "Wr0ng!Password")
				if i == 4 {
					var locked *models.LockedError
					require.ErrorAs(t, err, &locked)
					assert.Equal(t, 15, locked.MinutesRemaining)
				} else {
					require.ErrorIs(t, err, models.ErrIncorrectPassword)
				}
			}

			if tt.wrongBefore < 5 && tt.wantAttempts > 0 {
				assert.Equal(t, tt.wantAttempts, env.account(t, main.ID).Lockout.FailedAttempts)
				return
			}

			err := env.admin.Login(ctx, sess, testPassword)
			stored := env.account(t, main.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, env.reload(t, sess).State.AdminManagementAuthenticated)
			} else {
				require.NoError(t, err)
				assert.True(t, env.reload(t, sess).State.AdminManagementAuthenticated)
			}
			assert.Equal(t, 0, stored.Lockout.FailedAttempts)
			assert.Equal(t, tt.wantLocked, stored.Lockout.LockUntil != nil)
		})
	}
}

func TestAdminService_Login_LockShared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.signedIn(t, main)

	for i := 0; i < 5; i++ {
		_ = env.admin.Login(ctx, sess, "Wr0ng!Password")
	}

	_, err := env.login.Login(ctx, env.newSession(t), "main@example.com", testPassword)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestAdminService_Logout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.managing(t, main)

	require.NoError(t, env.admin.Logout(ctx, sess))

	stored := env.reload(t, sess)
	assert.False(t, stored.State.AdminManagementAuthenticated)
	assert.True(t, stored.State.Authenticated(), "leaving management keeps the login")

	require.NoError(t, env.admin.Logout(ctx, sess))
}

func TestAdminService_ListAdmins(t *testing.T) {
	env := newTestEnv(t)
	main := env.seed(t, "main@example.com", asMain)
	until := time.Now().Add(5 * time.Minute)
	env.seed(t, "locked@example.com", func(a *models.Account) { a.Lockout.LockUntil = &until })
	sess := env.managing(t, main)

	admins, err := env.admin.ListAdmins(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, admins, 2)

	byEmail := map[string]models.AdminSummary{}
	for _, s := range admins {
		byEmail[s.Email] = s
	}
	assert.True(t, byEmail["main@example.com"].IsMainAdmin)
	assert.False(t, byEmail["main@example.com"].Locked)
	assert.True(t, byEmail["locked@example.com"].Locked)
}

func TestAdminService_CreateAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.managing(t, main)

	summary, err := env.admin.CreateAdmin(ctx, sess, " New@Example.com ", "N3w!Password", false)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", summary.Email)
	assert.False(t, summary.IsMainAdmin)
	assert.False(t, summary.TwoFactorEnabled)

	result, err := env.login.Login(ctx, env.newSession(t), "new@example.com", "N3w!Password")
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, result.Outcome)
}

func TestAdminService_CreateAdmin_PolicyOnlyPassword(t *testing.T) {
	env := newTestEnv(t)
	main := env.seed(t, "main@example.com", asMain)
	sess := env.managing(t, main)

	summary, err := env.admin.CreateAdmin(context.Background(), sess, "new@example.com", "Abc12345!", false)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", summary.Email)
}

func TestAdminService_CreateAdmin_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		isMain   bool
		wantErr  error
	}{
		{name: "duplicate email", email: "main@example.com", password: "N3w!Password", wantErr: models.ErrConflict},
		{name: "duplicate email in another case", email: "MAIN@example.com", password: "N3w!Password", wantErr: models.ErrConflict},
		{name: "weak password", email: "new@example.com", password: "weak", wantErr: models.ErrWeakPassword},
		{name: "second main admin", email: "new@example.com", password: "N3w!Password", isMain: true, wantErr: models.ErrConflict},
		{name: "empty email", email: "  ", password: "N3w!Password", wantErr: models.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			main := env.seed(t, "main@example.com", asMain)
			sess := env.managing(t, main)

			_, err := env.admin.CreateAdmin(context.Background(), sess, tt.email, tt.password, tt.isMain)
			assert.ErrorIs(t, err, tt.wantErr)

			count, err := env.repo.CountByRole(context.Background(), models.RoleAdmin)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestAdminService_DeleteAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	target := env.seed(t, "target@example.com")
	sess := env.managing(t, main)

	require.NoError(t, env.admin.DeleteAdmin(ctx, sess, target.ID))
	_, err := env.repo.GetByID(ctx, target.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, env.admin.DeleteAdmin(ctx, sess, target.ID), models.ErrNotFound)
}

func TestAdminService_DeleteAdmin_Self(t *testing.T) {
	env := newTestEnv(t)
	main := env.seed(t, "main@example.com", asMain)
	sess := env.managing(t, main)

	assert.ErrorIs(t, env.admin.DeleteAdmin(context.Background(), sess, main.ID), models.ErrCannotDeleteSelf)
}

func TestAdminService_DeleteAdmin_OtherMainAdmin(t *testing.T) {
	actor := &models.Account{ID: "actor", Email: "main@example.com", Role: models.RoleAdmin, IsMainAdmin: true}
	other := &models.Account{ID: "other", Email: "other@example.com", Role: models.RoleAdmin, IsMainAdmin: true}
	deleted := false

	repo := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			switch id {
			case actor.ID:
				copied := *actor
				return &copied, nil
			case other.ID:
				copied := *other
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	env := newTestEnv(t)
	logger := newTestLogger()
	svc := NewAdminService(repo, env.hasher, auth.NewLockoutPolicy(5, 15*time.Minute), env.sessions, true, logger, pkglogger.NewAuditLogger(logger))

	sess := env.newSession(t)
	sess.State.Authenticate(identityOf(actor))
	sess.State.AdminManagementAuthenticated = true

	assert.ErrorIs(t, svc.DeleteAdmin(context.Background(), sess, other.ID), models.ErrCannotDeleteMain)
	assert.False(t, deleted)
}

func TestAdminService_DeleteAdmin_StorageFailure(t *testing.T) {
	actor := &models.Account{ID: "actor", Email: "main@example.com", Role: models.RoleAdmin, IsMainAdmin: true}
	repo := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			if id == actor.ID {
				copied := *actor
				return &copied, nil
			}
			return &models.Account{ID: id, Role: models.RoleAdmin}, nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			return errors.New("connection reset")
		},
	}

	env := newTestEnv(t)
	logger := newTestLogger()
	svc := NewAdminService(repo, env.hasher, auth.NewLockoutPolicy(5, 15*time.Minute), env.sessions, true, logger, pkglogger.NewAuditLogger(logger))

	sess := env.newSession(t)
	sess.State.Authenticate(identityOf(actor))
	sess.State.AdminManagementAuthenticated = true

	assert.ErrorIs(t, svc.DeleteAdmin(context.Background(), sess, "target"), models.ErrInternalServer)
}

func TestAdminService_DemotedMidSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	sess := env.managing(t, main)

	stored := env.account(t, main.ID)
	stored.IsMainAdmin = false
	require.NoError(t, env.repo.Save(ctx, stored))

	_, err := env.admin.ListAdmins(ctx, sess)
	assert.ErrorIs(t, err, models.ErrAccessDenied)
}

func TestAdminService_EnsureMainAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.admin.EnsureMainAdmin(ctx, "Boot@Example.com", "B00t!Password")
	require.NoError(t, err)
	assert.True(t, created)

	account, err := env.repo.GetByEmail(ctx, "boot@example.com")
	require.NoError(t, err)
	assert.True(t, account.IsMainAdmin)

	created, err = env.admin.EnsureMainAdmin(ctx, "second@example.com", "B00t!Password")
	require.NoError(t, err)
	assert.False(t, created, "bootstrap is a no-op once an admin exists")
}

func TestAdminService_EnsureMainAdmin_WeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.admin.EnsureMainAdmin(context.Background(), "boot@example.com", "weak")
	assert.ErrorIs(t, err, models.ErrWeakPassword)
}

func TestAdminService_ProvisionAdmin(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.admin.ProvisionAdmin(context.Background(), "ops@example.com", "0ps!Password", false)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", created.Email)
	assert.Empty(t, created.Password)
	assert.True(t, env.hasher.Verify("0ps!Password", created.PasswordHash))
}

func TestAdminService_PromoteMainAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	main := env.seed(t, "main@example.com", asMain)
	other := env.seed(t, "other@example.com")

	assert.ErrorIs(t, env.admin.PromoteMainAdmin(ctx, "other@example.com", false), models.ErrConflict)
	assert.False(t, env.account(t, other.ID).IsMainAdmin)

	require.NoError(t, env.admin.PromoteMainAdmin(ctx, "other@example.com", true))
	assert.True(t, env.account(t, other.ID).IsMainAdmin)
	assert.False(t, env.account(t, main.ID).IsMainAdmin)

	require.NoError(t, env.admin.PromoteMainAdmin(ctx, "other@example.com", false), "already main is a no-op")
	assert.ErrorIs(t, env.admin.PromoteMainAdmin(ctx, "missing@example.com", true), models.ErrNotFound)
}

func TestAdminService_PromoteMainAdmin_NoExistingMain(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "solo@example.com")

	require.NoError(t, env.admin.PromoteMainAdmin(context.Background(), "solo@example.com", false))
	assert.True(t, env.account(t, a.ID).IsMainAdmin)
}

func TestAdminService_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	until := time.Now().Add(10 * time.Minute)
	a := env.seed(t, "admin@example.com", func(a *models.Account) {
		a.Lockout.LockUntil = &until
	})
	env.enableTwoFactor(t, a)

	require.NoError(t, env.admin.ResetPassword(ctx, "admin@example.com", "R3set!Password"))

	stored := env.account(t, a.ID)
	assert.Nil(t, stored.Lockout.LockUntil)
	assert.False(t, stored.TwoFactorEnabled)
	assert.False(t, stored.HasTwoFactorSecret())

	result, err := env.login.Login(ctx, env.newSession(t), "admin@example.com", "R3set!Password")
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, result.Outcome)

	assert.ErrorIs(t, env.admin.ResetPassword(ctx, "admin@example.com", "weak"), models.ErrWeakPassword)
	assert.ErrorIs(t, env.admin.ResetPassword(ctx, "missing@example.com", "R3set!Password"), models.ErrNotFound)
}
