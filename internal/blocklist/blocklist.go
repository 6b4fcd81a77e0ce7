// Package blocklist records revoked token identifiers until their natural
// expiry. Existence of a jti key means the token is revoked; entries expire
// on their own, so nothing is ever garbage collected by hand.
package blocklist

import (
	"context"
	"time"
)

// Store is the key/TTL existence store backing token revocation.
type Store interface {
	// Revoke inserts jti with the given lifetime. Revoking an already
	// revoked jti is a no-op success.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether jti is currently on the blocklist.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
