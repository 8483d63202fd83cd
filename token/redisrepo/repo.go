// Package redisrepo provides a Redis-backed RefreshTokenRepo so refresh
// tokens survive auth-service restarts and can be shared across replicas.
package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/markhive/go-auth/token"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ token.RefreshTokenRepo = (*RedisRefreshTokenRepo)(nil)

type RedisRefreshTokenRepo struct {
	client  *redis.Client
	nowFunc func() time.Time
}

func New(client *redis.Client) *RedisRefreshTokenRepo {
	return &RedisRefreshTokenRepo{client: client, nowFunc: time.Now}
}

func (r *RedisRefreshTokenRepo) Upsert(refreshToken *token.StoredRefreshToken) error {
	data, err := json.Marshal(refreshToken)
	if err != nil {
		return errors.Wrap(err, "[RedisRefreshTokenRepo.Upsert] marshal")
	}

	ttl := refreshToken.ExpiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		return errors.New("[RedisRefreshTokenRepo.Upsert] token already expired")
	}

	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, jtiKey(refreshToken.JTI), data, ttl)
	pipe.SAdd(ctx, userKey(refreshToken.UserID), refreshToken.JTI)
	pipe.Expire(ctx, userKey(refreshToken.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[RedisRefreshTokenRepo.Upsert] pipeline exec")
	}
	return nil
}

func (r *RedisRefreshTokenRepo) Get(jti string) (*token.StoredRefreshToken, error) {
	data, err := r.client.Get(context.Background(), jtiKey(jti)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRefreshTokenRepo.Get] client.Get")
	}

	var stored token.StoredRefreshToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[RedisRefreshTokenRepo.Get] unmarshal")
	}
	return &stored, nil
}

func (r *RedisRefreshTokenRepo) Delete(jti string) error {
	ctx := context.Background()
	stored, err := r.Get(jti)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, jtiKey(jti))
	pipe.SRem(ctx, userKey(stored.UserID), jti)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[RedisRefreshTokenRepo.Delete] pipeline exec")
	}
	return nil
}

func (r *RedisRefreshTokenRepo) DeleteByUserID(userID string) error {
	ctx := context.Background()
	jtis, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "[RedisRefreshTokenRepo.DeleteByUserID] SMembers")
	}

	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, jtiKey(jti))
	}
	keys = append(keys, userKey(userID))
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "[RedisRefreshTokenRepo.DeleteByUserID] Del")
	}
	return nil
}

func jtiKey(jti string) string {
	return "refresh:" + jti
}

func userKey(userID string) string {
	return "refresh_user:" + userID
}
