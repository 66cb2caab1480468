package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/blog-auth-service/internal/auth"
	"github.com/spec-kit/blog-auth-service/internal/config"
	"github.com/spec-kit/blog-auth-service/internal/domain"
	"github.com/spec-kit/blog-auth-service/internal/events"
	"github.com/spec-kit/blog-auth-service/internal/repository"
	apperrors "github.com/spec-kit/blog-auth-service/pkg/util"
)

// TokenPair bundles a session token with its refresh counterpart.
type TokenPair struct {
	Token            string
	TokenExpiresAt   time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// AuthService is the credential verifier and lockout guard. It decides
// whether a presented (email, password) pair authenticates an account,
// applies the failed-attempt lockout policy, and issues tokens on success.
type AuthService struct {
	accounts   repository.AccountRepository
	resets     repository.PasswordResetRepository
	refresh    repository.RefreshTokenRepository
	tokenMgr   *auth.TokenManager
	dispatcher events.Dispatcher
	logger     *zap.Logger

	bcryptCost       int
	lockoutThreshold int
	lockoutDuration  time.Duration
	refreshTTL       time.Duration
	resetTTL         time.Duration

	// dummyHash is compared against when the email is unknown, so the
	// unknown-identifier path costs the same as a wrong password.
	dummyHash string

	now func() time.Time
}

// AuthDependencies encapsulates collaborator requirements for the service.
type AuthDependencies struct {
	AccountRepo       repository.AccountRepository
	PasswordResetRepo repository.PasswordResetRepository
	RefreshTokenRepo  repository.RefreshTokenRepository
	Dispatcher        events.Dispatcher
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies, logger *zap.Logger) *AuthService {
	dummyHash, _ := auth.HashPassword("dummy-credential", cfg.Auth.BcryptCost)
	return &AuthService{
		accounts:         deps.AccountRepo,
		resets:           deps.PasswordResetRepo,
		refresh:          deps.RefreshTokenRepo,
		dispatcher:       deps.Dispatcher,
		logger:           logger,
		tokenMgr:         auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenTTL(), cfg.Auth.RefreshTokenTTL()),
		bcryptCost:       cfg.Auth.BcryptCost,
		lockoutThreshold: cfg.Auth.LockoutThreshold,
		lockoutDuration:  cfg.Auth.LockoutDuration(),
		refreshTTL:       cfg.Auth.RefreshTokenTTL(),
		resetTTL:         cfg.Auth.PasswordResetTTL(),
		dummyHash:        dummyHash,
		now:              time.Now,
	}
}

// Authenticate verifies the presented credentials against the stored hash,
// enforcing the lockout policy. Unknown email and wrong password fail with
// the same variant so callers cannot probe for registered addresses. The
// lock check runs before the hash comparison; a locked account never
// consumes an attempt.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.Account, *TokenPair, error) {
	now := s.now()

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if err == pgx.ErrNoRows {
			// Equalize timing with the known-account path.
			_ = auth.ComparePassword(s.dummyHash, password)
			return nil, nil, apperrors.NewInvalidCredentials()
		}
		return nil, nil, apperrors.NewInternalError(err)
	}

	if !account.Active {
		return nil, nil, apperrors.NewAccountInactive()
	}

	if account.IsLocked(now) {
		return nil, nil, apperrors.NewAccountLocked(account.LockRemaining(now))
	}

	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, nil, s.recordFailure(ctx, account, now)
	}

	if err := s.accounts.RecordSuccessfulAuth(ctx, account.ID, now); err != nil {
		s.logger.Error("failed to record successful auth", zap.String("account_id", account.ID), zap.Error(err))
		return nil, nil, apperrors.NewInternalError(err)
	}
	account.FailedAttemptCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	pair, err := s.issueTokenPair(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.EventLoginSucceeded, account, events.LoginSucceededPayload{Username: account.Username})
	return account, pair, nil
}

// recordFailure persists the failed attempt; the increment and the lock
// decision happen in one conditional update, so the account that crosses
// the threshold is locked immediately even under concurrent attempts. The
// crossing call itself still reports invalid credentials; only the next
// attempt observes the lock.
func (s *AuthService) recordFailure(ctx context.Context, account *domain.Account, now time.Time) error {
	result, err := s.accounts.RecordFailedAttempt(ctx, account.ID, s.lockoutThreshold, now.Add(s.lockoutDuration))
	if err != nil {
		// Fail closed: the rejection stands, bookkeeping failure becomes a
		// server error and never grants access.
		s.logger.Error("failed to record login attempt", zap.String("account_id", account.ID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventLoginFailed, account, events.LoginFailedPayload{FailedAttemptCount: result.Count})

	if result.Count == s.lockoutThreshold && result.LockedUntil != nil {
		s.logger.Warn("account locked after repeated failures",
			zap.String("account_id", account.ID),
			zap.Int("failed_attempts", result.Count),
			zap.Time("locked_until", *result.LockedUntil))
		s.publish(ctx, events.EventAccountLocked, account, events.AccountLockedPayload{
			FailedAttemptCount: result.Count,
			LockedUntil:        *result.LockedUntil,
		})
	}

	return apperrors.NewInvalidCredentials()
}

// Register creates a new account with a hashed secret and issues an initial
// token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Account, *TokenPair, error) {
	email := normalizeEmail(input.Email)

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, nil, apperrors.NewConflict("email already registered", nil)
	} else if err != pgx.ErrNoRows {
		return nil, nil, apperrors.NewInternalError(err)
	}
	if _, err := s.accounts.GetByUsername(ctx, input.Username); err == nil {
		return nil, nil, apperrors.NewConflict("username already taken", nil)
	} else if err != pgx.ErrNoRows {
		return nil, nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}

	account := &domain.Account{
		Email:        email,
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}

	pair, err := s.issueTokenPair(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.EventAccountRegistered, account, events.AccountRegisteredPayload{
		Username: account.Username,
		Role:     account.Role,
	})
	return account, pair, nil
}

// Refresh exchanges a live refresh token for a fresh pair. The old token is
// revoked; refresh tokens are single-use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Account, *TokenPair, error) {
	claims, err := s.tokenMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	accountID, err := s.refresh.Get(ctx, claims.ID)
	if err != nil {
		if err == repository.ErrRefreshTokenNotFound {
			return nil, nil, apperrors.NewInvalidToken()
		}
		return nil, nil, apperrors.NewInternalError(err)
	}
	if accountID != claims.AccountID {
		return nil, nil, apperrors.NewInvalidToken()
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, apperrors.NewAccountNotFound()
		}
		return nil, nil, apperrors.NewInternalError(err)
	}
	if !account.Active {
		return nil, nil, apperrors.NewAccountInactive()
	}

	if err := s.refresh.Delete(ctx, claims.ID); err != nil {
		s.logger.Warn("failed to revoke rotated refresh token", zap.String("jti", claims.ID), zap.Error(err))
	}

	pair, err := s.issueTokenPair(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// Logout revokes the refresh token, best effort. Session tokens stay valid
// until expiry; revocation applies to the refresh path only.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokenMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.refresh.Delete(ctx, claims.ID); err != nil {
		s.logger.Warn("failed to revoke refresh token", zap.String("jti", claims.ID), zap.Error(err))
	}
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewAccountNotFound()
		}
		return apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		return apperrors.NewInvalidCredentials()
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventPasswordChanged, account, events.PasswordChangedPayload{ViaReset: false})
	return nil
}

// RequestPasswordReset persists a reset token for the email. Unknown emails
// return no token and no error; the boundary answers identically either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewInternalError(err)
	}

	token := &repository.PasswordResetToken{
		AccountID: account.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return token, nil
}

// ConfirmPasswordReset validates the reset token and updates the password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewValidationError("invalid reset token", nil)
		}
		return apperrors.NewInternalError(err)
	}
	if token.UsedAt != nil || s.now().After(token.ExpiresAt) {
		return apperrors.NewValidationError("reset token expired or already used", nil)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, token.AccountID, hash); err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.resets.MarkUsed(ctx, token.ID); err != nil {
		return apperrors.NewInternalError(err)
	}

	account, err := s.accounts.GetByID(ctx, token.AccountID)
	if err == nil {
		s.publish(ctx, events.EventPasswordChanged, account, events.PasswordChangedPayload{ViaReset: true})
	}
	return nil
}

// GetAccount fetches an account by id, for administrative inspection.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewAccountNotFound()
		}
		return nil, apperrors.NewInternalError(err)
	}
	return account, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issueTokenPair(ctx context.Context, account *domain.Account) (*TokenPair, error) {
	token, tokenExp, err := s.tokenMgr.IssueSessionToken(account)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refreshToken, jti, refreshExp, err := s.tokenMgr.IssueRefreshToken(account)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.refresh.Save(ctx, jti, account.ID, s.refreshTTL); err != nil {
		// The pair is still returned; an unregistered refresh token simply
		// fails closed at refresh time.
		s.logger.Warn("failed to register refresh token", zap.String("jti", jti), zap.Error(err))
	}

	return &TokenPair{
		Token:            token,
		TokenExpiresAt:   tokenExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, account *domain.Account, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: account.ID,
		Email:     account.Email,
		Timestamp: s.now(),
		Payload:   payload,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
