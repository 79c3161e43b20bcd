// Package idempotency deduplicates retried upload submissions. Mobile
// clients resend the intake request on flaky connections; the guard makes
// sure one Idempotency-Key creates at most one upload.
package idempotency

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyTTL bounds how long a key blocks resubmission. Retries arrive within
// seconds; a day covers queued uploads that take long to publish.
const keyTTL = 24 * time.Hour

// pendingMarker is stored between Claim and Store, while the first
// request is still creating its upload row.
const pendingMarker = "pending"

type Guard struct {
	client *redis.Client
}

func NewGuard(redisURL string, tlsInsecure bool) (*Guard, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Guard{client: redis.NewClient(opt)}, nil
}

func (g *Guard) Close() error {
	return g.client.Close()
}

// Claim reserves the key for the calling request. When claimed is true
// the caller owns the key and must follow up with Store or Release.
// Otherwise existing holds the upload ID created by the earlier request,
// or "" when that request is still in flight.
func (g *Guard) Claim(ctx context.Context, userID uuid.UUID, idemKey string) (existing string, claimed bool, err error) {
	k := guardKey(userID, idemKey)

	ok, err := g.client.SetNX(ctx, k, pendingMarker, keyTTL).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := g.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET. Treat as in flight; the client
		// can simply retry.
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == pendingMarker {
		return "", false, nil
	}

	return val, false, nil
}

// Store records the upload created under the key so later retries get
// the same upload back.
func (g *Guard) Store(ctx context.Context, userID uuid.UUID, idemKey, uploadID string) error {
	return g.client.Set(ctx, guardKey(userID, idemKey), uploadID, keyTTL).Err()
}

// Release frees the key after a failed intake so the client may retry.
func (g *Guard) Release(ctx context.Context, userID uuid.UUID, idemKey string) error {
	return g.client.Del(ctx, guardKey(userID, idemKey)).Err()
}

func guardKey(userID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("uploads:idem:%s:%s", userID, idemKey)
}
