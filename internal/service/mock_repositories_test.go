package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/blog-auth-service/internal/domain"
	"github.com/spec-kit/blog-auth-service/internal/repository"
)

// mockAccountRepo is an in-memory AccountRepository mirroring the SQL
// semantics of the Postgres implementation, including the atomic
// increment-and-lock of RecordFailedAttempt.
type mockAccountRepo struct {
	mu         sync.Mutex
	accounts   map[string]*domain.Account
	nextID     int
	failwrites bool
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *mockAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email || existing.Username == account.Username {
			return errors.New("unique constraint violation")
		}
	}
	r.nextID++
	account.ID = fmt.Sprintf("acc-%d", r.nextID)
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *mockAccountRepo) Update(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[account.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Email = account.Email
	stored.Username = account.Username
	stored.FirstName = account.FirstName
	stored.LastName = account.LastName
	stored.Role = account.Role
	stored.Active = account.Active
	return nil
}

func (r *mockAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *account
	return &copied, nil
}

func (r *mockAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockAccountRepo) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Username == username {
			copied := *account
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockAccountRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	account.PasswordHash = hash
	return nil
}

func (r *mockAccountRepo) RecordFailedAttempt(_ context.Context, id string, threshold int, lockUntil time.Time) (*repository.FailedAttemptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failwrites {
		return nil, errors.New("write failed")
	}
	account, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	account.FailedAttemptCount++
	if account.FailedAttemptCount >= threshold {
		until := lockUntil
		account.LockedUntil = &until
	}
	result := &repository.FailedAttemptResult{Count: account.FailedAttemptCount}
	if account.LockedUntil != nil {
		until := *account.LockedUntil
		result.LockedUntil = &until
	}
	return result, nil
}

func (r *mockAccountRepo) RecordSuccessfulAuth(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failwrites {
		return errors.New("write failed")
	}
	account, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	account.FailedAttemptCount = 0
	account.LockedUntil = nil
	loginAt := at
	account.LastLoginAt = &loginAt
	return nil
}

func (r *mockAccountRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
}

func (r *mockAccountRepo) stored(id string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	account := r.accounts[id]
	if account == nil {
		return nil
	}
	copied := *account
	return &copied
}

type mockRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMockRefreshTokenRepo() *mockRefreshTokenRepo {
	return &mockRefreshTokenRepo{tokens: make(map[string]string)}
}

func (r *mockRefreshTokenRepo) Save(_ context.Context, jti, accountID string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[jti] = accountID
	return nil
}

func (r *mockRefreshTokenRepo) Get(_ context.Context, jti string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accountID, ok := r.tokens[jti]
	if !ok {
		return "", repository.ErrRefreshTokenNotFound
	}
	return accountID, nil
}

func (r *mockRefreshTokenRepo) Delete(_ context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, jti)
	return nil
}

type mockPasswordResetRepo struct {
	mu     sync.Mutex
	byID   map[string]*repository.PasswordResetToken
	nextID int
}

func newMockPasswordResetRepo() *mockPasswordResetRepo {
	return &mockPasswordResetRepo{byID: make(map[string]*repository.PasswordResetToken)}
}

func (r *mockPasswordResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	token.ID = fmt.Sprintf("reset-%d", r.nextID)
	token.CreatedAt = time.Now()
	copied := *token
	r.byID[token.ID] = &copied
	return nil
}

func (r *mockPasswordResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.byID {
		if token.Token == tokenStr {
			copied := *token
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockPasswordResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	token.UsedAt = &now
	return nil
}
