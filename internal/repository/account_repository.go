package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/blog-auth-service/internal/domain"
)

// FailedAttemptResult reports the account's lockout bookkeeping after a
// failed attempt has been recorded.
type FailedAttemptResult struct {
	Count       int
	LockedUntil *time.Time
}

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// RecordFailedAttempt increments the failed-attempt counter and, when the
	// increment reaches the threshold, sets locked_until to lockUntil in the
	// same statement. The increment and the lock decision are a single
	// conditional update so concurrent attempts cannot bypass the threshold.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*FailedAttemptResult, error)

	// RecordSuccessfulAuth resets the counter, clears the lock and stamps
	// last_login_at. Only lockout fields are touched; profile mutations by
	// other components are never clobbered.
	RecordSuccessfulAuth(ctx context.Context, id string, at time.Time) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, email, username, first_name, last_name, password_hash, role, active,
        failed_attempt_count, locked_until, last_login_at, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (email, username, first_name, last_name, password_hash, role, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		account.Email,
		account.Username,
		account.FirstName,
		account.LastName,
		account.PasswordHash,
		account.Role,
		account.Active,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	const query = `
        UPDATE accounts SET email=$1, username=$2, first_name=$3, last_name=$4, role=$5, active=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.pool.Exec(ctx, query,
		account.Email,
		account.Username,
		account.FirstName,
		account.LastName,
		account.Role,
		account.Active,
		account.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE username=$1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const query = `UPDATE accounts SET password_hash=$1, updated_at=NOW() WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, hash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*FailedAttemptResult, error) {
	const query = `
        UPDATE accounts
        SET failed_attempt_count = failed_attempt_count + 1,
            locked_until = CASE WHEN failed_attempt_count + 1 >= $2 THEN $3 ELSE locked_until END,
            updated_at = NOW()
        WHERE id = $1
        RETURNING failed_attempt_count, locked_until`

	var result FailedAttemptResult
	if err := r.pool.QueryRow(ctx, query, id, threshold, lockUntil).Scan(
		&result.Count,
		&result.LockedUntil,
	); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *accountRepository) RecordSuccessfulAuth(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE accounts
        SET failed_attempt_count = 0, locked_until = NULL, last_login_at = $2, updated_at = NOW()
        WHERE id = $1`

	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.FirstName,
		&account.LastName,
		&account.PasswordHash,
		&account.Role,
		&account.Active,
		&account.FailedAttemptCount,
		&account.LockedUntil,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}
