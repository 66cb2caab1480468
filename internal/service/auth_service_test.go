package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/blog-auth-service/internal/auth"
	"github.com/spec-kit/blog-auth-service/internal/config"
	"github.com/spec-kit/blog-auth-service/internal/domain"
	apperrors "github.com/spec-kit/blog-auth-service/pkg/util"
)

func newTestConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret-key",
			SessionTokenTTLHours: 24,
			RefreshTokenTTLHours: 168,
			BcryptCost:           bcrypt.MinCost,
			LockoutThreshold:     5,
			LockoutDurationMin:   60,
			PasswordResetTTLMin:  30,
		},
	}
}

type testEnv struct {
	svc      *AuthService
	accounts *mockAccountRepo
	refresh  *mockRefreshTokenRepo
	resets   *mockPasswordResetRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accounts := newMockAccountRepo()
	refresh := newMockRefreshTokenRepo()
	resets := newMockPasswordResetRepo()
	svc := NewAuthService(newTestConfig(), AuthDependencies{
		AccountRepo:       accounts,
		PasswordResetRepo: resets,
		RefreshTokenRepo:  refresh,
	}, zap.NewNop())
	return &testEnv{svc: svc, accounts: accounts, refresh: refresh, resets: resets}
}

func (e *testEnv) seedAccount(t *testing.T, email, username, password string) *domain.Account {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	account := &domain.Account{
		Email:        email,
		Username:     username,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
	}
	require.NoError(t, e.accounts.Create(context.Background(), account))
	return account
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "correct horse")

	// Prior failures short of the threshold do not prevent a login.
	for i := 0; i < 4; i++ {
		_, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "wrong")
		require.Error(t, err)
	}
	require.Equal(t, 4, env.accounts.stored(account.ID).FailedAttemptCount)

	got, pair, err := env.svc.Authenticate(context.Background(), "writer@example.com", "correct horse")
	require.NoError(t, err)
	require.NotNil(t, pair)

	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, 0, got.FailedAttemptCount)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)

	stored := env.accounts.stored(account.ID)
	assert.Equal(t, 0, stored.FailedAttemptCount)
	assert.Nil(t, stored.LockedUntil)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestAuthService_Authenticate_EmailIsCaseNormalized(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "writer@example.com", "writer", "pw")

	_, _, err := env.svc.Authenticate(context.Background(), "  Writer@Example.COM ", "pw")
	assert.NoError(t, err)
}

func TestAuthService_Authenticate_EnumerationResistance(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "real@example.com", "real", "rightpass")

	_, _, unknownErr := env.svc.Authenticate(context.Background(), "nonexistent@example.com", "anything")
	_, _, wrongErr := env.svc.Authenticate(context.Background(), "real@example.com", "wrongsecret")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.True(t, apperrors.IsCode(unknownErr, apperrors.CodeInvalidCredentials))
	assert.True(t, apperrors.IsCode(wrongErr, apperrors.CodeInvalidCredentials))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestAuthService_Authenticate_ThresholdLocksAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	// The first five failures all report invalid credentials; the lock is
	// written by the fifth, not reported by it.
	for i := 0; i < 5; i++ {
		_, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "wrong")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials), "attempt %d", i+1)
	}

	stored := env.accounts.stored(account.ID)
	assert.Equal(t, 5, stored.FailedAttemptCount)
	require.NotNil(t, stored.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *stored.LockedUntil, 5*time.Second)

	// The next attempt is rejected as locked even with the correct secret,
	// and consumes no attempt.
	_, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAccountLocked))
	assert.Equal(t, 5, env.accounts.stored(account.ID).FailedAttemptCount)
}

func TestAuthService_Authenticate_LockedAccount_SkipsVerification(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	lockedUntil := time.Now().Add(30 * time.Minute)
	env.accounts.mu.Lock()
	env.accounts.accounts[account.ID].FailedAttemptCount = 5
	env.accounts.accounts[account.ID].LockedUntil = &lockedUntil
	env.accounts.mu.Unlock()

	_, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAccountLocked))
	assert.Contains(t, err.Error(), "Account temporarily locked. Try again in 30 minutes")
	assert.Equal(t, 5, env.accounts.stored(account.ID).FailedAttemptCount)
}

func TestAuthService_Authenticate_LockExpiry(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	expired := time.Now().Add(-time.Minute)
	env.accounts.mu.Lock()
	env.accounts.accounts[account.ID].FailedAttemptCount = 5
	env.accounts.accounts[account.ID].LockedUntil = &expired
	env.accounts.mu.Unlock()

	// An elapsed lock is treated as unlocked regardless of the counter.
	got, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedAttemptCount)
	assert.Nil(t, got.LockedUntil)
}

func TestAuthService_Authenticate_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	env.accounts.mu.Lock()
	env.accounts.accounts[account.ID].Active = false
	env.accounts.mu.Unlock()

	_, _, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAccountInactive))
}

func TestAuthService_Authenticate_AttemptWriteFailureFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	env.accounts.mu.Lock()
	env.accounts.failwrites = true
	env.accounts.mu.Unlock()

	_, pair, err := env.svc.Authenticate(context.Background(), "writer@example.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, pair)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternalError))
}

func TestAuthService_Authenticate_TokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "rightpass")

	_, first, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.NoError(t, err)
	_, second, err := env.svc.Authenticate(context.Background(), "writer@example.com", "rightpass")
	require.NoError(t, err)

	for _, pair := range []*TokenPair{first, second} {
		claims, err := env.svc.TokenManager().ParseToken(pair.Token)
		require.NoError(t, err)
		assert.Equal(t, account.ID, claims.AccountID)
		assert.Equal(t, "writer@example.com", claims.Email)
		assert.Equal(t, domain.RoleUser, claims.Role)
	}

	// Refresh tokens carry distinct ids; both are independently valid.
	firstClaims, err := env.svc.TokenManager().ParseRefreshToken(first.RefreshToken)
	require.NoError(t, err)
	secondClaims, err := env.svc.TokenManager().ParseRefreshToken(second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, firstClaims.ID, secondClaims.ID)
}

func TestAuthService_Register(t *testing.T) {
	env := newTestEnv(t)

	account, pair, err := env.svc.Register(context.Background(), RegisterInput{
		Email:     "New@Example.com",
		Username:  "newbie",
		FirstName: "New",
		LastName:  "User",
		Password:  "s3cret",
	})
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "new@example.com", account.Email)
	assert.Equal(t, domain.RoleUser, account.Role)
	assert.True(t, account.Active)
	assert.NoError(t, auth.ComparePassword(account.PasswordHash, "s3cret"))

	_, _, err = env.svc.Register(context.Background(), RegisterInput{
		Email:    "new@example.com",
		Username: "other",
		Password: "pw",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, _, err = env.svc.Register(context.Background(), RegisterInput{
		Email:    "other@example.com",
		Username: "newbie",
		Password: "pw",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "pw")

	_, pair, err := env.svc.Authenticate(context.Background(), "writer@example.com", "pw")
	require.NoError(t, err)

	got, newPair, err := env.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	require.NotNil(t, newPair)

	// The rotated-out token is single use.
	_, _, err = env.svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken))

	// The replacement still works.
	_, _, err = env.svc.Refresh(context.Background(), newPair.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_DeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "pw")

	_, pair, err := env.svc.Authenticate(context.Background(), "writer@example.com", "pw")
	require.NoError(t, err)

	env.accounts.remove(account.ID)

	_, _, err = env.svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAccountNotFound))
}

func TestAuthService_Logout_RevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "writer@example.com", "writer", "pw")

	_, pair, err := env.svc.Authenticate(context.Background(), "writer@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(context.Background(), pair.RefreshToken))

	_, _, err = env.svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken))

	// Logout with garbage input is a no-op, not an error.
	assert.NoError(t, env.svc.Logout(context.Background(), "not-a-token"))
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "writer@example.com", "writer", "oldpass")

	err := env.svc.ChangePassword(context.Background(), account.ID, "wrongpass", "newpass")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))

	require.NoError(t, env.svc.ChangePassword(context.Background(), account.ID, "oldpass", "newpass"))

	_, _, err = env.svc.Authenticate(context.Background(), "writer@example.com", "newpass")
	assert.NoError(t, err)
}

func TestAuthService_PasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "writer@example.com", "writer", "oldpass")

	// Unknown email yields neither token nor error.
	token, err := env.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, token)

	token, err = env.svc.RequestPasswordReset(context.Background(), "writer@example.com")
	require.NoError(t, err)
	require.NotNil(t, token)

	require.NoError(t, env.svc.ConfirmPasswordReset(context.Background(), token.Token, "brandnew"))

	_, _, err = env.svc.Authenticate(context.Background(), "writer@example.com", "brandnew")
	assert.NoError(t, err)

	// Reset tokens are single use.
	err = env.svc.ConfirmPasswordReset(context.Background(), token.Token, "again")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}
