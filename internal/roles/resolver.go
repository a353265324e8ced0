package roles

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"craftly/marketplace/internal/model"
)

// UserLookup is the slice of the storage gateway the resolver needs.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

// Resolver maps an email to a marketplace role. A redis client is
// optional: with one configured, lookups are cached for TTL; without
// one every guarded request costs a storage read, which is acceptable.
type Resolver struct {
	store UserLookup
	redis *redis.Client
	ttl   time.Duration
}

func NewResolver(store UserLookup, redisClient *redis.Client, ttl time.Duration) *Resolver {
	return &Resolver{store: store, redis: redisClient, ttl: ttl}
}

// Resolve returns the user's role, or the empty string when no user
// record exists. Guards must treat an absent role as insufficient.
func (r *Resolver) Resolve(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	if r.redis != nil {
		// Misses and cache errors both fall through to storage.
		if cached, err := r.redis.Get(ctx, roleKey(email)).Result(); err == nil {
			return cached, nil
		}
	}

	user, err := r.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	if r.redis != nil {
		_ = r.redis.Set(ctx, roleKey(email), user.Role, r.ttl).Err()
	}
	return user.Role, nil
}

// Invalidate drops the cached role after a role mutation.
func (r *Resolver) Invalidate(ctx context.Context, email string) {
	if r.redis == nil || email == "" {
		return
	}
	_ = r.redis.Del(ctx, roleKey(email)).Err()
}

func roleKey(email string) string {
	return "role:" + email
}
