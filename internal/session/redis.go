package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/model"
	redisclient "github.com/hosteldesk/desk-relay-go/internal/redis"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

// RedisRegistry stores sessions as redis hashes with a key TTL, so a desk can
// survive a relay restart and the expiry sweep is handled by redis itself.
// Selected when REDIS_URL is configured.
type RedisRegistry struct {
	client *redisclient.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redisclient.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) Create(ctx context.Context) (*model.DeskSession, error) {
	id, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate desk id: %w", err)
	}
	signature, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate signature: %w", err)
	}

	now := time.Now()
	session := &model.DeskSession{
		ID:        id,
		Signature: signature,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	key := redisclient.SessionKey(id)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"signature", signature,
		"createdAt", now.Format(time.RFC3339Nano),
		"expiresAt", session.ExpiresAt.Format(time.RFC3339Nano),
	)
	pipe.PExpire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Time("expiresAt", session.ExpiresAt).
		Msg("desk session created")

	return session, nil
}

func (r *RedisRegistry) Validate(ctx context.Context, id, signature string) bool {
	stored, err := r.client.HGet(ctx, redisclient.SessionKey(id), "signature").Result()
	if err != nil {
		// Missing key and transport errors both fail closed.
		return false
	}
	return util.ConstantTimeEqual(stored, signature)
}

func (r *RedisRegistry) Refresh(ctx context.Context, id, signature string) bool {
	if !r.Validate(ctx, id, signature) {
		return false
	}

	expiresAt := time.Now().Add(r.ttl)
	key := redisclient.SessionKey(id)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "expiresAt", expiresAt.Format(time.RFC3339Nano))
	pipe.PExpire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("deskId", util.MaskToken(id)).Msg("failed to refresh session")
		return false
	}

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Time("expiresAt", expiresAt).
		Msg("desk session refreshed")

	return true
}

func (r *RedisRegistry) Disable(ctx context.Context, id, signature string) bool {
	if !r.Validate(ctx, id, signature) {
		return false
	}

	if err := r.client.Del(ctx, redisclient.SessionKey(id)).Err(); err != nil {
		log.Error().Err(err).Str("deskId", util.MaskToken(id)).Msg("failed to disable session")
		return false
	}

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Msg("desk session disabled")

	return true
}

// DeleteExpired is a no-op: redis evicts sessions through the key TTL.
func (r *RedisRegistry) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *RedisRegistry) Count(ctx context.Context) int {
	var count int
	iter := r.client.Scan(ctx, 0, redisclient.SessionKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("failed to count sessions")
		return 0
	}
	return count
}
