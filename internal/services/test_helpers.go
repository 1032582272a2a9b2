package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/pkg/auth"
	"github.com/google/uuid"
)

// MockAccountRepository implements AccountRepository with per-method funcs.
type MockAccountRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.Account, error)
	ListAdminsFunc        func(ctx context.Context) ([]*models.Account, error)
	CountByRoleFunc       func(ctx context.Context, role string) (int, error)
	CreateFunc            func(ctx context.Context, account *models.Account) (*models.Account, error)
	SaveFunc              func(ctx context.Context, account *models.Account) error
	DeleteFunc            func(ctx context.Context, id string) error
	TransferMainAdminFunc func(ctx context.Context, id string) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ListAdmins(ctx context.Context) ([]*models.Account, error) {
	if m.ListAdminsFunc != nil {
		return m.ListAdminsFunc(ctx)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountRepository) CountByRole(ctx context.Context, role string) (int, error) {
	if m.CountByRoleFunc != nil {
		return m.CountByRoleFunc(ctx, role)
	}
	return 0, nil
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) Save(ctx context.Context, account *models.Account) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, account)
	}
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) TransferMainAdmin(ctx context.Context, id string) error {
	if m.TransferMainAdminFunc != nil {
		return m.TransferMainAdminFunc(ctx, id)
	}
	return nil
}

// FakeAccountRepository is an in-memory AccountRepository with the same
// constraints as the Postgres one: unique email, at most one main admin and
// transparent password hashing. Reads return copies.
type FakeAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	hasher   auth.Hasher
}

func NewFakeAccountRepository(hasher auth.Hasher) *FakeAccountRepository {
	return &FakeAccountRepository{accounts: make(map[string]models.Account), hasher: hasher}
}

func (f *FakeAccountRepository) hash(a *models.Account) error {
	if a.Password == "" {
		return nil
	}
	digest, err := f.hasher.Hash(a.Password)
	if err != nil {
		return err
	}
	now := time.Now()
	a.PasswordHash = digest
	a.PasswordChangedAt = &now
	a.Password = ""
	return nil
}

func (f *FakeAccountRepository) conflicts(a *models.Account) bool {
	for id, other := range f.accounts {
		if id == a.ID {
			continue
		}
		if other.Email == a.Email || (a.IsMainAdmin && other.IsMainAdmin) {
			return true
		}
	}
	return false
}

func (f *FakeAccountRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (f *FakeAccountRepository) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			found := a
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *FakeAccountRepository) ListAdmins(_ context.Context) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		if a.Role == models.RoleAdmin {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *FakeAccountRepository) CountByRole(_ context.Context, role string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.accounts {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *FakeAccountRepository) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.hash(a); err != nil {
		return nil, err
	}
	a.ID = uuid.New().String()
	if a.Role == "" {
		a.Role = models.RoleAdmin
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	if f.conflicts(a) {
		return nil, models.ErrConflict
	}
	f.accounts[a.ID] = *a
	created := *a
	return &created, nil
}

func (f *FakeAccountRepository) Save(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[a.ID]; !ok {
		return models.ErrNotFound
	}
	if err := f.hash(a); err != nil {
		return err
	}
	if f.conflicts(a) {
		return models.ErrConflict
	}
	if a.TwoFactorEnabled && len(a.TwoFactorSecretEncrypted) == 0 {
		return models.ErrBadRequest
	}
	a.UpdatedAt = time.Now()
	f.accounts[a.ID] = *a
	return nil
}

func (f *FakeAccountRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

func (f *FakeAccountRepository) TransferMainAdmin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	for otherID, a := range f.accounts {
		if a.IsMainAdmin {
			a.IsMainAdmin = false
			f.accounts[otherID] = a
		}
	}
	target.IsMainAdmin = true
	f.accounts[id] = target
	return nil
}

// Seed stores a directly, hashing a.Password if set, and returns the stored copy.
func (f *FakeAccountRepository) Seed(a models.Account) *models.Account {
	created, err := f.Create(context.Background(), &a)
	if err != nil {
		panic(err)
	}
	return created
}

// RecordingNotifier captures security notifications.
type RecordingNotifier struct {
	mu               sync.Mutex
	PasswordChanged  []string
	TwoFactorChanged []string
	Err              error
}

func (n *RecordingNotifier) NotifyPasswordChanged(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.PasswordChanged = append(n.PasswordChanged, email)
	return n.Err
}

func (n *RecordingNotifier) NotifyTwoFactorChanged(_ context.Context, email string, enabled bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	n.TwoFactorChanged = append(n.TwoFactorChanged, email+":"+state)
	return n.Err
}
