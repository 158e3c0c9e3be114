package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenMismatch    = errors.New("token mismatch")
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrExtendFailed     = errors.New("token extend failed")
	ErrTokenDeleted     = errors.New("token delete failed")
)

const (
	UserTokenPrefix = "login:user:token"
	UserTokenExpire = 30 * time.Minute
)

// TokenRepository holds the access token currently issued to each user.
// A bearer token is only honoured while it matches the stored one.
type TokenRepository struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewTokenRepository(rdb *redis.Client) *TokenRepository {
	return &TokenRepository{RDB: rdb, TTL: UserTokenExpire}
}

func tokenKey(userID string) string {
	return fmt.Sprintf("%s:%s", UserTokenPrefix, userID)
}

func (r *TokenRepository) AddUserToken(ctx context.Context, userID, token string) error {
	if err := r.RDB.Set(ctx, tokenKey(userID), token, r.TTL).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

func (r *TokenRepository) GetUserToken(ctx context.Context, userID string) (string, error) {
	token, err := r.RDB.Get(ctx, tokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", ErrRedisUnavailable
	}
	return token, nil
}

// CheckUserToken verifies token is the one on record and slides its expiry.
func (r *TokenRepository) CheckUserToken(ctx context.Context, userID, token string) error {
	stored, err := r.GetUserToken(ctx, userID)
	if err != nil {
		return err
	}
	if stored != token {
		return ErrTokenMismatch
	}
	return r.ExtendUserToken(ctx, userID)
}

func (r *TokenRepository) ExtendUserToken(ctx context.Context, userID string) error {
	if err := r.RDB.Expire(ctx, tokenKey(userID), r.TTL).Err(); err != nil {
		return ErrExtendFailed
	}
	return nil
}

func (r *TokenRepository) DeleteUserToken(ctx context.Context, userID string) error {
	if err := r.RDB.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return ErrTokenDeleted
	}
	return nil
}
