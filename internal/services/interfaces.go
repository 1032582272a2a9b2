package services

import (
	"context"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
)

// AccountRepository is the credential store. Implementations hash
// Account.Password on Create and Save.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAdmins(ctx context.Context) ([]*models.Account, error)
	CountByRole(ctx context.Context, role string) (int, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
	TransferMainAdmin(ctx context.Context, id string) error
}

// SessionManager persists session transitions.
type SessionManager interface {
	Save(ctx context.Context, s *session.Session) error
	Rotate(ctx context.Context, s *session.Session) error
	Destroy(ctx context.Context, s *session.Session) error
}

// TOTPProvider generates, seals and checks second factor secrets.
type TOTPProvider interface {
	Generate(accountName string) (*auth.Enrollment, error)
	Validate(secret, code string) bool
	Seal(secret string) (ciphertext, nonce []byte, err error)
	Open(ciphertext, nonce []byte) (string, error)
}
