package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/blog-auth-service/internal/domain"
	apperrors "github.com/spec-kit/blog-auth-service/pkg/util"
)

// TokenType distinguishes session tokens from refresh tokens.
type TokenType string

const (
	TokenTypeSession TokenType = "session"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, sessionTTL, refreshTTL time.Duration) *TokenManager {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), sessionTTL: sessionTTL, refreshTTL: refreshTTL}
}

// Claims describes the JWT payload.
type Claims struct {
	AccountID string      `json:"sub_id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	TokenType TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

// IssueSessionToken builds and signs a session JWT for the account.
func (tm *TokenManager) IssueSessionToken(account *domain.Account) (string, time.Time, error) {
	return tm.issue(account, TokenTypeSession, tm.sessionTTL, "")
}

// IssueRefreshToken builds and signs a refresh JWT carrying a unique jti,
// returned alongside the token so callers can register it for revocation.
func (tm *TokenManager) IssueRefreshToken(account *domain.Account) (token string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	token, expiresAt, err = tm.issue(account, TokenTypeRefresh, tm.refreshTTL, jti)
	return token, jti, expiresAt, err
}

func (tm *TokenManager) issue(account *domain.Account, typ TokenType, ttl time.Duration, jti string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
		Role:      account.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates the signature and expiry and returns claims.
// Expired tokens and malformed or mis-signed tokens are distinct variants,
// both surfaced to clients as unauthenticated.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewTokenExpired()
		}
		return nil, apperrors.NewInvalidToken()
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperrors.NewInvalidToken()
	}
	return claims, nil
}

// ParseRefreshToken parses and additionally enforces the refresh type.
func (tm *TokenManager) ParseRefreshToken(tokenStr string) (*Claims, error) {
	claims, err := tm.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" {
		return nil, apperrors.NewInvalidToken()
	}
	return claims, nil
}
