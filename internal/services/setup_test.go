package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

const testPassword = "Str0ng!Passw0rd"

type testEnv struct {
	repo      *FakeAccountRepository
	hasher    *pkgauth.BcryptHasher
	totp      *auth.TOTPManager
	store     *session.MemoryStore
	sessions  *session.Manager
	notifier  *RecordingNotifier
	login     *LoginService
	twoFactor *TwoFactorService
	password  *PasswordService
	admin     *AdminService
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	totpManager, err := auth.NewTOTPManager(key, "Wazgo", 1)
	require.NoError(t, err)

	logger := newTestLogger()
	audit := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewBcryptHasher(bcrypt.MinCost)
	repo := NewFakeAccountRepository(hasher)
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, time.Hour)
	notifier := &RecordingNotifier{}
	lockout := auth.NewLockoutPolicy(5, 15*time.Minute)

	return &testEnv{
		repo:     repo,
		hasher:   hasher,
		totp:     totpManager,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		login: NewLoginService(repo, hasher, lockout, auth.NewTimingDelay(0, 0),
			sessions, true, logger, audit),
		twoFactor: NewTwoFactorService(repo, totpManager, auth.NewLockoutPolicy(5, 15*time.Minute),
			sessions, notifier, logger, audit),
		password: NewPasswordService(repo, hasher, lockout, sessions, notifier, logger, audit),
		admin:    NewAdminService(repo, hasher, lockout, sessions, true, logger, audit),
	}
}

func (e *testEnv) seed(t *testing.T, email string, mutate ...func(*models.Account)) *models.Account {
	t.Helper()
	a := models.Account{Email: email, Password: testPassword, Role: models.RoleAdmin}
	for _, m := range mutate {
		m(&a)
	}
	return e.repo.Seed(a)
}

// enableTwoFactor provisions and enables a secret for a, returning the plaintext secret.
func (e *testEnv) enableTwoFactor(t *testing.T, a *models.Account) string {
	t.Helper()
	enrollment, err := e.totp.Generate(a.Email)
	require.NoError(t, err)
	sealed, nonce, err := e.totp.Seal(enrollment.Secret)
	require.NoError(t, err)

	stored, err := e.repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	stored.TwoFactorSecretEncrypted = sealed
	stored.TwoFactorSecretNonce = nonce
	stored.TwoFactorEnabled = true
	require.NoError(t, e.repo.Save(context.Background(), stored))
	return enrollment.Secret
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *testEnv) newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.sessions.Load(context.Background(), "")
	require.NoError(t, err)
	return s
}

func (e *testEnv) signedIn(t *testing.T, a *models.Account) *session.Session {
	t.Helper()
	s := e.newSession(t)
	s.State.Authenticate(identityOf(a))
	require.NoError(t, e.sessions.Save(context.Background(), s))
	return s
}

// reload returns the stored state for s.Token, or an anonymous session if it is gone.
func (e *testEnv) reload(t *testing.T, s *session.Session) *session.Session {
	t.Helper()
	loaded, err := e.sessions.Load(context.Background(), s.Token)
	require.NoError(t, err)
	return loaded
}

func validCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a code accepted at none of the steps inside a skew of one.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := time.Now()
	accepted := map[string]bool{}
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := totp.GenerateCode(secret, now.Add(offset))
		require.NoError(t, err)
		accepted[code] = true
	}
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%06d", n*111111%1000000)
		if !accepted[candidate] {
			return candidate
		}
	}
}
