package auth

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T, skew uint) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "Wazgo", skew)
	require.NoError(t, err)
	return tm
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestNewTOTPManager_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		tm, err := NewTOTPManager(make([]byte, length), "Wazgo", 1)
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestTOTPManager_Generate(t *testing.T) {
	tm := newTestTOTPManager(t, 1)

	e, err := tm.Generate("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, e.Secret)
	assert.True(t, strings.HasPrefix(e.URL, "otpauth://totp/"))
	assert.Contains(t, e.URL, "issuer=Wazgo")
	assert.True(t, strings.HasPrefix(e.QRCode, "data:image/png;base64,"))

	other, err := tm.Generate("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, e.Secret, other.Secret)
}

func TestTOTPManager_ValidateCurrentCode(t *testing.T) {
	tm := newTestTOTPManager(t, 1)
	e, err := tm.Generate("alice@example.com")
	require.NoError(t, err)

	code, err := tm.CurrentCode(e.Secret)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	assert.True(t, tm.Validate(e.Secret, code))
	assert.True(t, tm.Validate(e.Secret, " "+code+" "))
}

func TestTOTPManager_ValidateRejectsMalformed(t *testing.T) {
	tm := newTestTOTPManager(t, 1)
	e, err := tm.Generate("alice@example.com")
	require.NoError(t, err)

	assert.False(t, tm.Validate(e.Secret, ""))
	assert.False(t, tm.Validate(e.Secret, "12345"))
	assert.False(t, tm.Validate(e.Secret, "1234567"))
	assert.False(t, tm.Validate("", "123456"))
}

func TestTOTPManager_ValidateSkewWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 15, 0, time.UTC)

	tm := newTestTOTPManager(t, 1)
	tm.now = func() time.Time { return now }
	e, err := tm.Generate("alice@example.com")
	require.NoError(t, err)

	assert.True(t, tm.Validate(e.Secret, codeAt(t, e.Secret, now.Add(-30*time.Second))))
	assert.True(t, tm.Validate(e.Secret, codeAt(t, e.Secret, now.Add(30*time.Second))))
	assert.False(t, tm.Validate(e.Secret, codeAt(t, e.Secret, now.Add(-5*time.Minute))))

	strict := newTestTOTPManager(t, 0)
	strict.now = func() time.Time { return now }
	assert.False(t, strict.Validate(e.Secret, codeAt(t, e.Secret, now.Add(-30*time.Second))))
	assert.True(t, strict.Validate(e.Secret, codeAt(t, e.Secret, now)))
}

func TestTOTPManager_SealOpenRoundTrip(t *testing.T) {
	tm := newTestTOTPManager(t, 1)

	sealed, nonce, err := tm.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Len(t, nonce, 12)
	assert.NotContains(t, string(sealed), "JBSWY3DPEHPK3PXP")

	secret, err := tm.Open(sealed, nonce)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", secret)

	_, again, err := tm.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotEqual(t, nonce, again)
}

func TestTOTPManager_OpenRejectsTampering(t *testing.T) {
	tm := newTestTOTPManager(t, 1)
	sealed, nonce, err := tm.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	sealed[0] ^= 0xff
	_, err = tm.Open(sealed, nonce)
	assert.Error(t, err)

	_, err = tm.Open(sealed, []byte("short"))
	assert.Error(t, err)

	otherKey := newTestTOTPManager(t, 1)
	sealed[0] ^= 0xff
	_, err = otherKey.Open(sealed, nonce)
	assert.Error(t, err)
}
