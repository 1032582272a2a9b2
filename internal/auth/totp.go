package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
)

// Enrollment is a freshly generated secret, ready to be sealed and shown once.
type Enrollment struct {
	Secret string // base32
	URL    string // otpauth:// provisioning URI
	QRCode string // PNG data URL of URL
}

// TOTPManager generates, seals and validates RFC 6238 secrets.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string
	skew          uint
	now           func() time.Time
}

// NewTOTPManager creates a manager. encryptionKey must be exactly 32 bytes.
// skew is the number of adjacent 30 second steps accepted on either side.
func NewTOTPManager(encryptionKey []byte, issuer string, skew uint) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
		skew:          skew,
		now:           time.Now,
	}, nil
}

// Generate creates a secret for accountName along with its provisioning URI and QR code.
func (tm *TOTPManager) Generate(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// CurrentCode returns the code for the current step. Diagnostics and tests only.
func (tm *TOTPManager) CurrentCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, tm.now(), tm.opts())
}

// Validate reports whether code matches secret within the configured skew.
func (tm *TOTPManager) Validate(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits.Length() || secret == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, tm.now(), tm.opts())
	return err == nil && valid
}

func (tm *TOTPManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      tm.skew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Seal encrypts secret with AES-256-GCM.
func (tm *TOTPManager) Seal(secret string) (ciphertext, nonce []byte, err error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), nil), nonce, nil
}

// Open decrypts a secret produced by Seal.
func (tm *TOTPManager) Open(ciphertext, nonce []byte) (string, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
