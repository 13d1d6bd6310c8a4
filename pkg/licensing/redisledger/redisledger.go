// Package redisledger keeps the webhook event ledger in Redis so every
// replica sees the same claims.
package redisledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

const (
	statePending = "pending"
	stateDone    = "done"
)

// Returns the existing marker, or "" after setting the pending one.
var claimScript = redis.NewScript(`
local state = redis.call("GET", KEYS[1])
if state then
	return state
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return ""
`)

// Only the pending marker may be released; completed ids stay.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Ledger implements licensing.Ledger with one key per event id.
type Ledger struct {
	client redis.UniversalClient
	prefix string
}

var _ licensing.Ledger = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithPrefix sets the key namespace. Default is "keygate".
func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// New creates a ledger on client. Panics if client is nil.
func New(client redis.UniversalClient, opts ...Option) *Ledger {
	if client == nil {
		panic("redisledger: client is required")
	}
	l := &Ledger{client: client, prefix: "keygate"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) key(id string) string {
	return l.prefix + ":webhook:" + id
}

// Claim sets the pending marker unless the id is already known, in which
// case it reports the marker found.
func (l *Ledger) Claim(ctx context.Context, id string, ttl time.Duration) (licensing.ClaimState, error) {
	state, err := claimScript.Run(ctx, l.client, []string{l.key(id)}, statePending, max(ttl.Milliseconds(), 1)).Text()
	if err != nil {
		return licensing.ClaimPending, fmt.Errorf("redisledger: claim %s: %w", id, err)
	}
	switch state {
	case "":
		return licensing.ClaimAcquired, nil
	case stateDone:
		return licensing.ClaimDone, nil
	}
	return licensing.ClaimPending, nil
}

func (l *Ledger) Complete(ctx context.Context, id string, ttl time.Duration) error {
	if err := l.client.Set(ctx, l.key(id), stateDone, ttl).Err(); err != nil {
		return fmt.Errorf("redisledger: complete %s: %w", id, err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, id string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(id)}, statePending).Err(); err != nil {
		return fmt.Errorf("redisledger: release %s: %w", id, err)
	}
	return nil
}
