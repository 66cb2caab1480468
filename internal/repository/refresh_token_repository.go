package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshTokenNotFound indicates the token id is absent from the
// allow-list: either revoked, expired, or never issued.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

const refreshKeyPrefix = "refresh:"

// RefreshTokenRepository is the allow-list of live refresh tokens. Presence
// of a jti is required for refresh; deleting it is the revocation path.
type RefreshTokenRepository interface {
	Save(ctx context.Context, jti, accountID string, ttl time.Duration) error
	Get(ctx context.Context, jti string) (string, error)
	Delete(ctx context.Context, jti string) error
}

type refreshTokenRepository struct {
	client *redis.Client
}

// NewRefreshTokenRepository returns a Redis-backed implementation. Entries
// expire with the token itself, so the list never needs sweeping.
func NewRefreshTokenRepository(client *redis.Client) RefreshTokenRepository {
	return &refreshTokenRepository{client: client}
}

func (r *refreshTokenRepository) Save(ctx context.Context, jti, accountID string, ttl time.Duration) error {
	return r.client.Set(ctx, refreshKeyPrefix+jti, accountID, ttl).Err()
}

func (r *refreshTokenRepository) Get(ctx context.Context, jti string) (string, error) {
	accountID, err := r.client.Get(ctx, refreshKeyPrefix+jti).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrRefreshTokenNotFound
		}
		return "", err
	}
	return accountID, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, jti string) error {
	return r.client.Del(ctx, refreshKeyPrefix+jti).Err()
}
