// Package mirror copies party presence into a shared key-value store so other
// processes can inspect it. The in-memory registry stays authoritative; every
// write here is best effort.
package mirror

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("mirror: key not found")

// DefaultTTL bounds how long a mirrored party survives in the store.
const DefaultTTL = 24 * time.Hour

type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// PartyKey holds the party header.
func PartyKey(partyId string) string {
	return "party:" + partyId
}

// MembersKey holds the JSON encoded member set of a party.
func MembersKey(partyId string) string {
	return "party:" + partyId + ":users"
}
