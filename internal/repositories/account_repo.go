package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/wazgo/internal/database"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, password_hash, role, is_main_admin,
	failed_attempts, lock_until, code_failed_attempts, code_lock_until,
	two_factor_enabled, two_factor_secret_encrypted, two_factor_secret_nonce,
	password_changed_at, created_at, updated_at`

// AccountRepository is the Postgres credential store. Plaintext set on
// Account.Password is hashed before it reaches the database.
type AccountRepository struct {
	db     *database.DB
	pool   *pgxpool.Pool
	hasher auth.Hasher
	now    func() time.Time
}

func NewAccountRepository(db *database.DB, hasher auth.Hasher) *AccountRepository {
	return &AccountRepository{db: db, pool: db.Pool, hasher: hasher, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account

	err := scanner.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.IsMainAdmin,
		&a.Lockout.FailedAttempts, &a.Lockout.LockUntil,
		&a.CodeLockout.FailedAttempts, &a.CodeLockout.LockUntil,
		&a.TwoFactorEnabled, &a.TwoFactorSecretEncrypted, &a.TwoFactorSecretNonce,
		&a.PasswordChangedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// applyPassword hashes a pending plaintext into PasswordHash.
func (r *AccountRepository) applyPassword(a *models.Account) error {
	if a.Password == "" {
		return nil
	}
	digest, err := r.hasher.Hash(a.Password)
	if err != nil {
		return err
	}
	now := r.now()
	a.PasswordHash = digest
	a.PasswordChangedAt = &now
	a.Password = ""
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

// ListAdmins returns every admin account, oldest first.
func (r *AccountRepository) ListAdmins(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return scanAccountRows(rows)
}

func (r *AccountRepository) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// Create inserts a. A second main admin is rejected with models.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if err := r.applyPassword(a); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	a.ID = uuid.New().String()
	now := r.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Role == "" {
		a.Role = models.RoleAdmin
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, role, is_main_admin,
			two_factor_enabled, two_factor_secret_encrypted, two_factor_secret_nonce,
			password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Role, a.IsMainAdmin,
		a.TwoFactorEnabled, a.TwoFactorSecretEncrypted, a.TwoFactorSecretNonce,
		a.PasswordChangedAt, a.CreatedAt, a.UpdatedAt,
	))
}

// Save writes every mutable column of a.
func (r *AccountRepository) Save(ctx context.Context, a *models.Account) error {
	if err := r.applyPassword(a); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.UpdatedAt = r.now()

	query := `
		UPDATE accounts SET
			email = $1, password_hash = $2, role = $3, is_main_admin = $4,
			failed_attempts = $5, lock_until = $6,
			code_failed_attempts = $7, code_lock_until = $8,
			two_factor_enabled = $9, two_factor_secret_encrypted = $10, two_factor_secret_nonce = $11,
			password_changed_at = $12, updated_at = $13
		WHERE id = $14`

	result, err := r.pool.Exec(ctx, query,
		a.Email, a.PasswordHash, a.Role, a.IsMainAdmin,
		a.Lockout.FailedAttempts, a.Lockout.LockUntil,
		a.CodeLockout.FailedAttempts, a.CodeLockout.LockUntil,
		a.TwoFactorEnabled, a.TwoFactorSecretEncrypted, a.TwoFactorSecretNonce,
		a.PasswordChangedAt, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TransferMainAdmin makes id the only main admin.
func (r *AccountRepository) TransferMainAdmin(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		now := r.now()
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET is_main_admin = FALSE, updated_at = $1 WHERE is_main_admin AND id <> $2`,
			now, id,
		); err != nil {
			return database.MapPostgresError(err)
		}

		result, err := tx.Exec(ctx,
			`UPDATE accounts SET is_main_admin = TRUE, updated_at = $1 WHERE id = $2`,
			now, id,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
