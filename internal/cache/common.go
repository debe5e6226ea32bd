package cache

import (
	"context"
	"crypto/tls"
	"fmt"

	"authd/internal/configuration"
	"authd/internal/models"

	"github.com/redis/rueidis"
)

type RueidisCache struct {
	client rueidis.Client
}

func NewRueidisCache(config models.RedisCacheConfiguration) (*RueidisCache, error) {
	clientOption := rueidis.ClientOption{
		InitAddress: config.Hosts,
		Password:    config.Password,
	}

	if config.TLSEnabled {
		clientOption.TLSConfig = &tls.Config{
			ServerName: config.TLSServerName,
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := rueidis.NewClient(clientOption)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}
	return &RueidisCache{client: client}, nil
}

func (r *RueidisCache) GetMFAAttempts(principalID string) (int, error) {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID)

	count, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return int(count), nil
}

func (r *RueidisCache) IncrementMFAAttempts(principalID string) error {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID)

	_, err := r.client.Do(ctx, r.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return err
	}

	return r.client.Do(
		ctx,
		r.client.B().Expire().Key(key).Seconds(int64(configuration.MFALockoutSeconds)).Build(),
	).Error()
}

func (r *RueidisCache) ResetMFAAttempts(principalID string) error {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID)

	return r.client.Do(ctx, r.client.B().Del().Key(key).Build()).Error()
}

func (r *RueidisCache) MarkTOTPCodeUsed(principalID string, code string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheTOTPUsedKey, principalID, code)

	// SET key value NX EX ttl
	// Returns OK if set, nil (RedisNil) if the code was already marked.
	err := r.client.Do(
		ctx,
		r.client.B().Set().Key(key).Value("1").Nx().ExSeconds(int64(configuration.TOTPCodeTTL)).Build(),
	).Error()

	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *RueidisCache) Close() error {
	r.client.Close()
	return nil
}
