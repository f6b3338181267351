package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/infrastructure/auth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const credentialKeyPrefix = "registry:credential:"

// CachedCredentialRepository is a read-through Redis cache in front of the
// credential registry. Token resolution happens on every authenticated
// request, so the landlord database sees one lookup per token per TTL
// instead of one per request. Cache failures degrade to the inner
// repository, never to a denied request.
type CachedCredentialRepository struct {
	inner  directory.CredentialRepository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

var _ directory.CredentialRepository = (*CachedCredentialRepository)(nil)

// NewCachedCredentialRepository wraps a credential repository with a Redis
// cache. A nil client disables caching and delegates everything.
func NewCachedCredentialRepository(inner directory.CredentialRepository, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedCredentialRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedCredentialRepository{inner: inner, client: client, ttl: ttl, log: log}
}

// FindByTokenHash resolves a credential, preferring the cache
func (r *CachedCredentialRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*directory.AccessCredential, error) {
	if r.client == nil {
		return r.inner.FindByTokenHash(ctx, tokenHash)
	}

	key := credentialKeyPrefix + tokenHash
	payload, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var cred directory.AccessCredential
		if err := json.Unmarshal(payload, &cred); err == nil {
			return &cred, nil
		}
		// Corrupt entry: drop it and fall through to the registry
		r.client.Del(ctx, key)
	} else if err != redis.Nil {
		r.log.Warn("credential cache read failed", zap.Error(err))
	}

	cred, err := r.inner.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(cred); err == nil {
		if err := r.client.Set(ctx, key, payload, r.cacheTTL(cred)).Err(); err != nil {
			r.log.Warn("credential cache write failed", zap.Error(err))
		}
	}
	return cred, nil
}

// cacheTTL clamps the cache lifetime so an entry never outlives the
// credential it caches
func (r *CachedCredentialRepository) cacheTTL(cred *directory.AccessCredential) time.Duration {
	ttl := r.ttl
	if cred.ExpiresAt != nil {
		if remaining := time.Until(*cred.ExpiresAt); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// Save writes through to the registry and invalidates the cached entry
func (r *CachedCredentialRepository) Save(ctx context.Context, cred *directory.AccessCredential) error {
	if err := r.inner.Save(ctx, cred); err != nil {
		return err
	}
	r.invalidate(ctx, cred.TokenHash)
	return nil
}

// RevokeByTokenHash revokes in the registry and evicts the cached entry so
// the revocation takes effect immediately, not after TTL
func (r *CachedCredentialRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	if err := r.inner.RevokeByTokenHash(ctx, tokenHash); err != nil {
		return err
	}
	r.invalidate(ctx, tokenHash)
	return nil
}

// DeleteExpired delegates to the registry; expired entries age out of the
// cache on their own
func (r *CachedCredentialRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return r.inner.DeleteExpired(ctx)
}

func (r *CachedCredentialRepository) invalidate(ctx context.Context, tokenHash string) {
	if r.client == nil || tokenHash == "" {
		return
	}
	if err := r.client.Del(ctx, credentialKeyPrefix+tokenHash).Err(); err != nil {
		r.log.Warn("credential cache invalidation failed", zap.String("token_prefix", auth.SafePrefix(tokenHash)), zap.Error(err))
	}
}
