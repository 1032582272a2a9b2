package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/services"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

const testPassword = "Str0ng!Passw0rd"

func newOperator(t *testing.T) (*services.AdminService, *services.FakeAccountRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := pkgauth.NewBcryptHasher(bcrypt.MinCost)
	repo := services.NewFakeAccountRepository(hasher)
	return services.NewAdminService(repo, hasher, auth.NewLockoutPolicy(5, 15*time.Minute), nil, true, logger, pkglogger.NewAuditLogger(logger)), repo
}

func runCmd(t *testing.T, admin operator, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), admin, args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_CreateAdmin(t *testing.T) {
	admin, repo := newOperator(t)

	out, _, err := runCmd(t, admin, "create-admin", "-email", "Root@Example.com", "-password", testPassword, "-main")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin root@example.com")

	created, err := repo.GetByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.True(t, created.IsMainAdmin)

	_, _, err = runCmd(t, admin, "create-admin", "-email", "root@example.com", "-password", testPassword)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Contains(t, describe(err), "conflict")
}

func TestRun_CreateAdminWeakPassword(t *testing.T) {
	admin, _ := newOperator(t)

	_, _, err := runCmd(t, admin, "create-admin", "-email", "a@example.com", "-password", "short")
	require.Error(t, err)
	assert.Contains(t, describe(err), "password rejected")
}

func TestRun_SetMainAdmin(t *testing.T) {
	admin, repo := newOperator(t)
	current := repo.Seed(models.Account{Email: "main@example.com", Password: testPassword, IsMainAdmin: true})
	next := repo.Seed(models.Account{Email: "next@example.com", Password: testPassword})

	_, _, err := runCmd(t, admin, "set-main-admin", "-email", "next@example.com")
	assert.ErrorIs(t, err, models.ErrConflict)

	out, _, err := runCmd(t, admin, "set-main-admin", "-email", "next@example.com", "-transfer")
	require.NoError(t, err)
	assert.Contains(t, out, "next@example.com is now the main admin")

	got, err := repo.GetByID(context.Background(), next.ID)
	require.NoError(t, err)
	assert.True(t, got.IsMainAdmin)
	got, err = repo.GetByID(context.Background(), current.ID)
	require.NoError(t, err)
	assert.False(t, got.IsMainAdmin)

	_, _, err = runCmd(t, admin, "set-main-admin", "-email", "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, "no admin with that email", describe(err))
}

func TestRun_ResetPassword(t *testing.T) {
	admin, repo := newOperator(t)
	a := repo.Seed(models.Account{Email: "admin@example.com", Password: testPassword})

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	stored.Lockout.FailedAttempts = 4
	require.NoError(t, repo.Save(context.Background(), stored))

	out, _, err := runCmd(t, admin, "reset-password", "-email", "admin@example.com", "-password", "N3w!Passw0rdX")
	require.NoError(t, err)
	assert.Contains(t, out, "password reset for admin@example.com")

	got, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Lockout.FailedAttempts)
	assert.False(t, got.TwoFactorEnabled)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("N3w!Passw0rdX")))
}

func TestRun_Usage(t *testing.T) {
	admin, _ := newOperator(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"drop-everything"}},
		{name: "missing email", args: []string{"create-admin", "-password", testPassword}},
		{name: "missing password", args: []string{"reset-password", "-email", "a@example.com"}},
		{name: "unknown flag", args: []string{"set-main-admin", "-email", "a@example.com", "-force"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := runCmd(t, admin, tt.args...)
			assert.ErrorIs(t, err, errUsage)
			assert.NotEmpty(t, stderr)
		})
	}
}
