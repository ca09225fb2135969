package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist invalidates already-issued access tokens for an account. Entries
// only need to outlive the access-token TTL, so they expire on their own.
type Denylist struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDenylist(client *redis.Client, accessTokenTTL time.Duration) *Denylist {
	return &Denylist{client: client, ttl: accessTokenTTL}
}

func (d *Denylist) Deny(ctx context.Context, accountID int64) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Set(ctx, denylistKey(accountID), time.Now().UTC().Unix(), d.ttl).Err()
}

// Denied reports whether the account's live tokens were revoked after the
// given issue time.
func (d *Denylist) Denied(ctx context.Context, accountID int64, issuedAt time.Time) (bool, error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	value, err := d.client.Get(ctx, denylistKey(accountID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var revokedAt int64
	if _, err := fmt.Sscanf(value, "%d", &revokedAt); err != nil {
		return true, nil
	}
	return issuedAt.Unix() <= revokedAt, nil
}

func denylistKey(accountID int64) string {
	return fmt.Sprintf("token_denylist:%d", accountID)
}
